package param

import (
	"bytes"
	"testing"
)

var testTable = MustTable(8,
	At(0, Byte("volume", 100)),
	At(1, Bits("mode", 0, 2, 2), Bits("poly", 2, 2, 3), Flag("am12", 4), Flag("am34", 5)),
	Repeat(2, 2, 1, 1, Bits("s%dwave", 0, 1, 255).High(7), Bits("s%dcurve", 4, 3, 7)),
	Repeat(4, 2, 1, 1, Bits("s%dwave", 0, 7, 255)),
	Skip(6, 1),
	At(7, Byte("tune", 0)),
)

func TestSlotKinds(t *testing.T) {
	want := []Kind{Simple, Composite, Structural, Structural, Reserved, Simple}
	for i, s := range testTable.Slots() {
		if s.Kind() != want[i] {
			t.Errorf("slot %d: kind %s, want %s", i, s.Kind(), want[i])
		}
	}
}

func TestTableNamesAndRanges(t *testing.T) {
	want := []string{"volume", "mode", "poly", "am12", "am34", "s1wave", "s1curve", "s2wave", "s2curve", "tune"}
	got := testTable.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
	p, ok := testTable.Lookup("s2wave")
	if !ok || p.Max != 255 {
		t.Fatalf("s2wave range = %+v, %v", p, ok)
	}
	p, _ = testTable.Lookup("tune")
	if p.Max != 255 {
		t.Fatalf("full byte without explicit max should default to 255, got %d", p.Max)
	}
}

func TestTableDecodeSplitAndComposite(t *testing.T) {
	// The table starts at data[1].
	data := []byte{0xFF, 90, 0x1E, 0x61, 0x10, 0x21, 0x05, 0x7F, 0x10}
	m := NewModel()
	if err := testTable.Decode(data, 1, m); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checks := map[string]int{
		"volume":  90,
		"mode":    2,
		"poly":    3,
		"am12":    1,
		"am34":    0,
		"s1wave":  128 + 0x21,
		"s1curve": 6,
		"s2wave":  0x05,
		"s2curve": 1,
		"tune":    0x10,
	}
	for k, want := range checks {
		if got := m.Value(k); got != want {
			t.Errorf("%s = %d, want %d", k, got, want)
		}
	}
}

func TestTableDecodeClampsToRange(t *testing.T) {
	m := NewModel()
	data := []byte{120, 0, 0, 0, 0, 0, 0, 0}
	if err := testTable.Decode(data, 0, m); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Value("volume") != 100 {
		t.Fatalf("volume = %d, want clamped 100", m.Value("volume"))
	}
}

func TestTableEncodeRoundTripZeroesReserved(t *testing.T) {
	data := []byte{77, 0x1E, 0x61, 0x10, 0x21, 0x05, 0x7F, 0x33}
	m := NewModel()
	if err := testTable.Decode(data, 0, m); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := make([]byte, 8)
	for i := range out {
		out[i] = 0xEE
	}
	if err := testTable.Encode(m, out, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := append([]byte(nil), data...)
	want[6] = 0x00 // reserved
	if !bytes.Equal(out, want) {
		t.Fatalf("encode(decode(x)) = % X, want % X", out, want)
	}
}

func TestTableBounds(t *testing.T) {
	m := NewModel()
	if err := testTable.Decode(make([]byte, 7), 0, m); err == nil {
		t.Fatalf("expected overrun error")
	}
	if err := testTable.Encode(m, make([]byte, 8), 1); err == nil {
		t.Fatalf("expected overrun error")
	}
}

func TestNewTableRejectsOverlap(t *testing.T) {
	if _, err := NewTable(1, At(0, Bits("a", 0, 3, 7), Bits("b", 2, 2, 3))); err == nil {
		t.Fatalf("expected overlap error")
	}
	if _, err := NewTable(1, At(1, Byte("a", 1))); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestIndexedTable(t *testing.T) {
	layer := MustTable(3,
		At(0, Byte("l%dlokey", 127)),
		Repeat(1, 2, 1, 1, Byte("l%dctl%d", 127)),
	)
	m := NewModel()
	if err := layer.DecodeIndexed([]byte{1, 2, 3, 4, 5, 6}, 3, 7, m); err != nil {
		t.Fatalf("DecodeIndexed: %v", err)
	}
	if m.Value("l7lokey") != 4 || m.Value("l7ctl1") != 5 || m.Value("l7ctl2") != 6 {
		t.Fatalf("indexed decode wrong: %v", m.Keys())
	}
	names := layer.NamesIndexed(7)
	if names[0] != "l7lokey" || names[2] != "l7ctl2" {
		t.Fatalf("names = %v", names)
	}
	out := make([]byte, 3)
	if err := layer.EncodeIndexed(m, out, 0, 7); err != nil {
		t.Fatalf("EncodeIndexed: %v", err)
	}
	if !bytes.Equal(out, []byte{4, 5, 6}) {
		t.Fatalf("out = % X", out)
	}
}
