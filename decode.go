package main

import (
	"errors"
	"fmt"
	"strings"

	"synthmcp/codec"
	"synthmcp/config"
	"synthmcp/k2000"
	"synthmcp/k4"
	"synthmcp/param"
	"synthmcp/resolve"
)

// decoded is one patch found in a stream of messages.
type decoded struct {
	Index  int             `json:"index"`
	Family string          `json:"family"`
	Status string          `json:"status"`
	Patch  *param.Document `json:"patch,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// offlineCodecs returns fresh codecs that never reach a device. K2000
// requests are dropped; the objects they ask for must be in the stream.
func offlineCodecs(cfg *config.Config) []codec.Codec {
	quiet := resolve.RequesterFunc(func(int, int) error { return nil })
	return []codec.Codec{
		k4.New(cfg.MIDIChannel()),
		k2000.New(byte(cfg.DeviceID), cfg.FormByte(), quiet, cfg.DependencyTimeout),
	}
}

// candidateParser is a codec that can decode one patch of a bulk dump.
type candidateParser interface {
	ParseAt(msg []byte, offset int) (*param.Model, error)
}

// receiver is a codec that accepts replies for a suspended decode.
type receiver interface {
	Receive(msg []byte) (codec.Result, error)
	Cancel()
}

// decodeStream decodes every patch in msgs. A program waiting for studio or
// preset objects takes them from the other messages in msgs, in any order.
func decodeStream(cfg *config.Config, msgs [][]byte) []decoded {
	codecs := offlineCodecs(cfg)
	var out []decoded
	for i, msg := range msgs {
		c, res, err := codec.Detect(msg, codecs...)
		if errors.Is(err, codec.ErrUnrecognized) {
			continue
		}
		if err != nil {
			out = append(out, decoded{Index: i, Family: c.Family(), Error: err.Error()})
			continue
		}

		switch res.Status {
		case codec.Complete:
			out = append(out, exportResult(i, c, res.Model))
		case codec.Select:
			p, ok := c.(candidateParser)
			if !ok {
				continue
			}
			for _, cand := range res.Candidates {
				m, err := p.ParseAt(msg, cand.Offset)
				if err != nil {
					out = append(out, decoded{Index: i, Family: c.Family(), Error: err.Error()})
					continue
				}
				out = append(out, exportResult(i, c, m))
			}
		case codec.Awaiting:
			out = append(out, resolveFromStream(i, c, res, msgs))
		}
	}
	return out
}

func resolveFromStream(i int, c codec.Codec, res codec.Result, msgs [][]byte) decoded {
	r, ok := c.(receiver)
	if !ok {
		return decoded{Index: i, Family: c.Family(), Error: "codec cannot take replies"}
	}
	// Replies can unlock further requests, so repeat until a pass over the
	// stream delivers nothing.
	for progress := true; progress; {
		progress = false
		for j, other := range msgs {
			if j == i {
				continue
			}
			got, err := r.Receive(other)
			if errors.Is(err, codec.ErrUnrecognized) {
				continue
			}
			if err != nil {
				return decoded{Index: i, Family: c.Family(), Error: err.Error()}
			}
			switch got.Status {
			case codec.Complete:
				return exportResult(i, c, got.Model)
			case codec.Awaiting:
				res, progress = got, true
			}
		}
	}
	r.Cancel()
	keys := make([]string, len(res.Pending))
	for k, key := range res.Pending {
		keys[k] = key.String()
	}
	return decoded{
		Index:  i,
		Family: c.Family(),
		Status: codec.Awaiting.String(),
		Error:  "not in stream: " + strings.Join(keys, ", "),
	}
}

func exportResult(i int, c codec.Codec, m *param.Model) decoded {
	return decoded{
		Index:  i,
		Family: c.Family(),
		Status: codec.Complete.String(),
		Patch:  param.Export(m, c.Family(), c.Reachable(m)),
	}
}

// codecFor returns an offline codec for family.
func codecFor(cfg *config.Config, family string) (codec.Codec, error) {
	for _, c := range offlineCodecs(cfg) {
		if c.Family() == family {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown family %q", family)
}
