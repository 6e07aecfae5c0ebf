package codec

import (
	"errors"

	"github.com/google/uuid"

	"synthmcp/param"
)

// Status is where a decode ended up.
type Status int

const (
	// Failed is the status of the empty Result returned with an error.
	Failed Status = iota
	// Complete carries a fully decoded model.
	Complete
	// Awaiting means the decode is suspended until the listed objects arrive.
	Awaiting
	// Select means the message is a bulk dump; the caller picks a candidate.
	Select
	// Acknowledged reports a device acknowledgement with nothing to decode.
	Acknowledged
	// Ignored means the message was understood but is not part of any
	// decode in flight.
	Ignored
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Complete:
		return "complete"
	case Awaiting:
		return "awaiting dependencies"
	case Select:
		return "select candidate"
	case Acknowledged:
		return "acknowledged"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Candidate is one patch inside a bulk dump.
type Candidate struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Bank   int    `json:"bank"`
	Number int    `json:"number"`
}

// Result is the outcome of a decode step. Failures are returned as errors.
type Result struct {
	Status     Status
	Model      *param.Model
	Pending    []ObjectKey
	Candidates []Candidate
	// Session identifies the dependency session behind an Awaiting or a
	// resumed Complete result.
	Session uuid.UUID
}

// Codec converts one synth family's SysEx messages to and from models.
type Codec interface {
	// Family is the short name used in configs and JSON documents.
	Family() string

	// NewModel returns an empty model with every range declared.
	NewModel() *param.Model

	// Parse decodes msg. It returns ErrUnrecognized when msg belongs to
	// another format.
	Parse(msg []byte) (Result, error)

	// Emit serializes m. toWorkingMemory targets the device's edit buffer
	// instead of the bank and number stored in m; toFile emits a message
	// meant for disk rather than a particular device.
	Emit(m *param.Model, toWorkingMemory, toFile bool) ([]byte, error)

	// Reachable lists, in wire order, the parameters m's current shape
	// declares.
	Reachable(m *param.Model) []string
}

// Detect parses msg with the first codec that recognizes it.
func Detect(msg []byte, codecs ...Codec) (Codec, Result, error) {
	for _, c := range codecs {
		res, err := c.Parse(msg)
		if errors.Is(err, ErrUnrecognized) {
			continue
		}
		return c, res, err
	}
	return nil, Result{}, ErrUnrecognized
}
