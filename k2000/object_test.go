package k2000

import (
	"bytes"
	"errors"
	"testing"

	"synthmcp/codec"
)

func TestWriteRoundTrip(t *testing.T) {
	data := []byte{0x08, 0xFF, 0x80, 0x7F, 0x00, 0x01, 0xA5, 0x5A, 0xC3}
	for _, form := range []byte{FormNibble, FormSevenBit} {
		o := Object{Type: TypeProgram, ID: 223, Name: "Grand Piano", Form: form, Data: data}
		msg, err := EncodeWrite(0x10, o)
		if err != nil {
			t.Fatalf("form %d: EncodeWrite: %v", form, err)
		}
		head := []byte{0xF0, 0x07, 0x10, 0x78, 0x09, 0x01, 0x04, 0x01, 0x5F, 0x00, 0x00, 0x09}
		if !bytes.Equal(msg[:headerSize], head) {
			t.Errorf("form %d: header % X, want % X", form, msg[:headerSize], head)
		}
		for _, b := range msg[1 : len(msg)-1] {
			if b > 0x7F {
				t.Fatalf("form %d: byte 0x%02X in message", form, b)
			}
		}
		got, err := DecodeWrite(msg)
		if err != nil {
			t.Fatalf("form %d: DecodeWrite: %v", form, err)
		}
		if got.Type != o.Type || got.ID != o.ID || got.Name != o.Name || got.Form != form || !bytes.Equal(got.Data, data) {
			t.Errorf("form %d: decoded %+v", form, got)
		}
	}
}

func TestWriteChecksumCoversBodyOnly(t *testing.T) {
	msg, _ := EncodeWrite(0, Object{Type: TypeKeymap, ID: 1, Name: "Map", Form: FormNibble, Data: []byte{0x12, 0x34}})
	body := msg[len(msg)-6 : len(msg)-2]
	if !bytes.Equal(body, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("nibble body % X", body)
	}
	if msg[len(msg)-2] != 0x0A {
		t.Errorf("checksum 0x%02X, want 0x0A", msg[len(msg)-2])
	}
}

func TestDecodeWriteCorrupt(t *testing.T) {
	good, _ := EncodeWrite(0, Object{Type: TypeStudio, ID: 5, Name: "S", Form: FormSevenBit, Data: []byte{1, 2, 3}})

	tests := []struct {
		name  string
		edit  func(m []byte) []byte
		field string
	}{
		{"checksum", func(m []byte) []byte { m[len(m)-2] ^= 0x01; return m }, "checksum"},
		{"high bit", func(m []byte) []byte { m[len(m)-3] |= 0x80; return m }, "body"},
		{"size", func(m []byte) []byte { m[11] = 4; return m }, "size"},
		{"form", func(m []byte) []byte { m[14] = 5; return m }, "form"},
		{"name", func(m []byte) []byte { return append(append(m[:12:12], 'A', 'B', 'C', 'D'), 0xF7) }, "name"},
	}
	for _, tc := range tests {
		msg := tc.edit(append([]byte(nil), good...))
		o, err := DecodeWrite(msg)
		var corrupt *codec.CorruptError
		if !errors.As(err, &corrupt) || corrupt.Field != tc.field {
			t.Errorf("%s: err = %v, want corrupt %s", tc.name, err, tc.field)
			continue
		}
		if o.Key() != (codec.ObjectKey{Type: TypeStudio, ID: 5}) {
			t.Errorf("%s: corrupt object lost its key: %v", tc.name, o.Key())
		}
	}

	if _, err := DecodeWrite([]byte{0xF0, 0x40, 0x00, 0x20, 0x00, 0x04, 0x00, 0x00, 0x00, 0xF7}); !errors.Is(err, codec.ErrUnrecognized) {
		t.Errorf("K4 message: %v", err)
	}
}

func TestEncodeRead(t *testing.T) {
	got := EncodeRead(0x00, TypeFXPreset, 12, FormNibble)
	want := []byte{0xF0, 0x07, 0x00, 0x78, 0x0A, 0x00, 0x72, 0x00, 0x0C, 0x00, 0x00, 0x00, 0x00, 0xF7}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeRead = % X, want % X", got, want)
	}
}

func TestReplies(t *testing.T) {
	key := codec.ObjectKey{Type: TypeProgram, ID: 200}
	r, err := DecodeReply(EncodeReply(0, key, 0))
	if err != nil || !r.Ack || r.Key != key || r.Err() != nil {
		t.Fatalf("DACK = %+v, %v", r, err)
	}
	r, err = DecodeReply(EncodeReply(0, key, 2))
	if err != nil || r.Ack || r.Code != 2 {
		t.Fatalf("DNAK = %+v, %v", r, err)
	}
	var rej *codec.RejectedError
	if !errors.As(r.Err(), &rej) || rej.Reason != "write-protected" {
		t.Errorf("DNAK err = %v", r.Err())
	}
}

func TestObjectIDs(t *testing.T) {
	for bank := 0; bank <= 9; bank++ {
		for number := 0; number <= 99; number++ {
			if b, n := Location(ObjectID(bank, number)); b != bank || n != number {
				t.Fatalf("Location(ObjectID(%d, %d)) = %d, %d", bank, number, b, n)
			}
		}
	}
	if ValidLocation(0, 0) == nil || ValidLocation(10, 1) == nil || ValidLocation(2, 100) == nil {
		t.Errorf("ValidLocation accepted a bad location")
	}
	if err := ValidLocation(9, 99); err != nil {
		t.Errorf("ValidLocation(9, 99): %v", err)
	}
}
