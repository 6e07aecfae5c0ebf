package sysex

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	Start = 0xF0
	End   = 0xF7
)

// Split returns every complete F0..F7 message found in stream. Bytes outside
// a message and messages cut short by the end of the stream are skipped.
func Split(stream []byte) [][]byte {
	var msgs [][]byte
	for {
		i := bytes.IndexByte(stream, Start)
		if i < 0 {
			return msgs
		}
		stream = stream[i:]
		j := bytes.IndexByte(stream[1:], End)
		if j < 0 {
			return msgs
		}
		// A second F0 before the F7 means the first message was truncated.
		if k := bytes.IndexByte(stream[1:j+1], Start); k >= 0 {
			stream = stream[k+1:]
			continue
		}
		msg := make([]byte, j+2)
		copy(msg, stream[:j+2])
		msgs = append(msgs, msg)
		stream = stream[j+2:]
	}
}

// Clean reports whether every byte between the framing bytes is a legal
// MIDI data byte.
func Clean(msg []byte) bool {
	if len(msg) < 2 {
		return false
	}
	for _, b := range msg[1 : len(msg)-1] {
		if b > 0x7F {
			return false
		}
	}
	return true
}

// Hex formats data as space separated upper-case hex pairs.
func Hex(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// ParseHex accepts hex with or without separators ("F0 40 00", "f04000").
func ParseHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t', ',', ':':
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// Dump writes one "index 0xNN" line per byte, preceded by a header naming
// the dump.
func Dump(w io.Writer, data []byte, label string) {
	fmt.Fprintf(w, "Dumping %d bytes to %s:\n", len(data), label)

	for i, b := range data {
		fmt.Fprintf(w, "%d 0x%02X\n", i, b)
	}
}
