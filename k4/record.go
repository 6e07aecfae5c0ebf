package k4

import (
	"fmt"
	"strings"

	"synthmcp/codec"
	"synthmcp/param"
)

// decodeRecord reads one 131-byte single (body and checksum) into m.
func decodeRecord(rec []byte, m *param.Model) error {
	body, sum := rec[:bodySize], rec[bodySize]
	if want := Checksum(body); sum != want {
		return codec.Corrupt("checksum", "got 0x%02X, want 0x%02X", sum, want)
	}
	m.Name = sanitizeName(body[nameOffset : nameOffset+nameLen])
	return singleTable.Decode(body, 0, m)
}

// encodeRecord writes m as one single into rec, which must hold 131 bytes.
func encodeRecord(m *param.Model, rec []byte) error {
	body := rec[:bodySize]
	if err := singleTable.Encode(withMuteDerived(m), body, 0); err != nil {
		return fmt.Errorf("failed to encode single: %w", err)
	}
	copy(body[nameOffset:], padName(m.Name))
	rec[bodySize] = Checksum(body)
	return nil
}

// withMuteDerived returns a copy of m where the source mute flags follow
// the levels. The K4 does not keep a mute bit that disagrees with its
// source level, so a muted source is sent at level 0 and a source at level
// 0 is sent muted.
func withMuteDerived(m *param.Model) *param.Model {
	c := m.Clone()
	for s := 1; s <= sourceCount; s++ {
		mute, level := fmt.Sprintf("s%dmute", s), fmt.Sprintf("s%dlevel", s)
		if c.Value(mute) != 0 {
			c.Set(level, 0)
		}
		if c.Value(level) == 0 {
			c.Set(mute, 1)
		} else {
			c.Set(mute, 0)
		}
	}
	return c
}

// sanitizeName maps bytes outside printable ASCII to spaces.
func sanitizeName(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			c = ' '
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// padName truncates or space-pads name to the stored length.
func padName(name string) []byte {
	out := []byte(sanitizeName([]byte(name)))
	if len(out) > nameLen {
		out = out[:nameLen]
	}
	for len(out) < nameLen {
		out = append(out, ' ')
	}
	return out
}
