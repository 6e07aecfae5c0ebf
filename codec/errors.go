// Package codec defines what every synth family codec shares: the decode
// result, the error taxonomy and detection across families.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnrecognized means the message is not in this codec's format. It is
	// not a user-facing error: the caller tries the next codec.
	ErrUnrecognized = errors.New("message not recognized")

	// ErrCanceled ends a suspended decode that was abandoned or replaced by
	// a newer one.
	ErrCanceled = errors.New("decode canceled")
)

// CorruptError reports a recognized message whose content is inconsistent.
type CorruptError struct {
	Field  string
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Field == "" {
		return "corrupt data: " + e.Reason
	}
	return fmt.Sprintf("corrupt data in %s: %s", e.Field, e.Reason)
}

// Corrupt returns a *CorruptError for field.
func Corrupt(field, format string, args ...any) error {
	return &CorruptError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ObjectKey names a device-resident object by type and id.
type ObjectKey struct {
	Type int
	ID   int
}

func (k ObjectKey) String() string {
	return fmt.Sprintf("object %d/%d", k.Type, k.ID)
}

// TimeoutError reports auxiliary objects the device never sent.
type TimeoutError struct {
	Session uuid.UUID
	Pending []ObjectKey
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	keys := make([]string, len(e.Pending))
	for i, k := range e.Pending {
		keys[i] = k.String()
	}
	return fmt.Sprintf("no reply after %s for %s", e.After, strings.Join(keys, ", "))
}

// RejectedError is a device-reported refusal, such as a write to a
// protected slot.
type RejectedError struct {
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("device rejected request: %s (code 0x%02X)", e.Reason, e.Code)
}
