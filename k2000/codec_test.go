package k2000

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"synthmcp/codec"
	"synthmcp/param"
	"synthmcp/resolve"
)

// fakeDevice records the READ requests a codec sends.
type fakeDevice struct {
	mu   sync.Mutex
	sent [][]byte
}

func (d *fakeDevice) send(msg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDevice) requests(typ int) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []int
	for _, msg := range d.sent {
		if msg[4] == opRead && get14(msg[5:]) == typ {
			ids = append(ids, get14(msg[7:]))
		}
	}
	return ids
}

func newTestCodec(timeout time.Duration) (*Codec, *fakeDevice) {
	dev := &fakeDevice{}
	return New(0, FormSevenBit, NewRequester(dev.send, 0, FormSevenBit), timeout), dev
}

// programMsg builds a program WRITE; edit sets parameters in wire form.
func programMsg(t *testing.T, format, studio int, edit func(m *param.Model)) []byte {
	t.Helper()
	c, _ := newTestCodec(time.Second)
	m := c.NewModel()
	m.Name = "Test Program"
	m.Set("fmt", format)
	m.Studio = studio
	if edit != nil {
		edit(m)
	}
	data, err := encodeProgram(m)
	if err != nil {
		t.Fatalf("encodeProgram: %v", err)
	}
	return objectMsg(t, Object{Type: TypeProgram, ID: ObjectID(1, 23), Name: m.Name, Form: FormSevenBit, Data: data})
}

func objectMsg(t *testing.T, o Object) []byte {
	t.Helper()
	msg, err := EncodeWrite(0, o)
	if err != nil {
		t.Fatalf("EncodeWrite: %v", err)
	}
	return msg
}

func TestOldFormatCompletesWithoutStudio(t *testing.T) {
	c, dev := newTestCodec(time.Second)
	res, err := c.Parse(programMsg(t, 2, 0, nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Status != codec.Complete {
		t.Fatalf("status %s, want complete", res.Status)
	}
	m := res.Model
	if m.StudioName != NotConnected {
		t.Errorf("studio name %q, want %q", m.StudioName, NotConnected)
	}
	if m.Name != "Test Program" || m.Bank != 1 || m.Number != 23 {
		t.Errorf("identity %q %d/%d", m.Name, m.Bank, m.Number)
	}
	if len(dev.sent) != 0 || c.State() != resolve.Idle {
		t.Errorf("sent %d requests, state %s", len(dev.sent), c.State())
	}
	for _, k := range c.Reachable(m) {
		if !m.Has(k) {
			t.Errorf("reachable parameter %s not decoded", k)
		}
	}
}

func TestProgramRoundTrip(t *testing.T) {
	c, _ := newTestCodec(time.Second)
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 20; n++ {
		m := c.NewModel()
		m.Name = fmt.Sprintf("Program %d", n)
		m.Bank, m.Number = 1+rng.Intn(9), rng.Intn(100)
		m.Set("fmt", 2)
		layers := 1 + rng.Intn(4)
		m.Set("layers", layers)
		for i := 0; i < layers; i++ {
			alg, _ := LookupAlgorithm(1 + rng.Intn(AlgorithmCount))
			m.Set(fmt.Sprintf("l%dalg", i), alg.Number)
			for _, f := range alg.Functions {
				m.Set(selectorKey(i, f.Page), rng.Intn(len(f.Codes())))
			}
		}
		if err := declareShape(m); err != nil {
			t.Fatalf("declareShape: %v", err)
		}
		for _, k := range c.Reachable(m) {
			if k == "fmt" || k == "layers" || strings.HasSuffix(k, "alg") || strings.HasSuffix(k, "sel") {
				continue
			}
			p, ok := m.Range(k)
			if !ok {
				t.Fatalf("%s has no range", k)
			}
			m.Set(k, p.Min+rng.Intn(p.Max-p.Min+1))
		}

		msg, err := c.Emit(m, false, true)
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
		res, err := c.Parse(msg)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		got := res.Model
		if got.Name != m.Name || got.Bank != m.Bank || got.Number != m.Number {
			t.Errorf("identity %q %d/%d, want %q %d/%d", got.Name, got.Bank, got.Number, m.Name, m.Bank, m.Number)
		}
		if diff := m.Diff(got, c.Reachable(m)); len(diff) > 0 {
			t.Fatalf("program %d: round trip changed %v", n, diff)
		}
	}
}

func studioMsg(t *testing.T, id int, presets [Buses]int) []byte {
	return objectMsg(t, Object{Type: TypeStudio, ID: id, Name: "Big Hall Studio", Form: FormNibble, Data: EncodeStudio(Studio{Format: 1, Presets: presets})})
}

func presetMsg(t *testing.T, id, alg int) []byte {
	return objectMsg(t, Object{Type: TypeFXPreset, ID: id, Name: fmt.Sprintf("Preset %d", id), Form: FormNibble, Data: EncodeFXPreset(FXPreset{Algorithm: alg, Params: []byte{1, 2}})})
}

// kdfxProgram uses studio 5. Slot 1 modulates MiniVerb's Rvrb Time on FX1,
// slot 2 Chorus 1's LFO Rate on FX3, slot 3 points at the empty FX2.
func kdfxProgram(t *testing.T) []byte {
	return programMsg(t, KDFXFormat, 5, func(m *param.Model) {
		m.Set("fxmod1bus", 1)
		m.Set("fxmod1param", 3)
		m.Set("fxmod2bus", 3)
		m.Set("fxmod2param", 21)
		m.Set("fxmod3bus", 2)
		m.Set("fxmod3param", 7)
	})
}

func TestStudioDependencies(t *testing.T) {
	c, dev := newTestCodec(time.Minute)
	res, err := c.Parse(kdfxProgram(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Status != codec.Awaiting {
		t.Fatalf("status %s, want awaiting", res.Status)
	}
	if ids := dev.requests(TypeStudio); len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("studio requests %v", ids)
	}

	res, err = c.Receive(studioMsg(t, 5, [Buses]int{7, 0, 12, 0, 3}))
	if err != nil || res.Status != codec.Awaiting {
		t.Fatalf("after studio: %s, %v", res.Status, err)
	}
	if ids := dev.requests(TypeFXPreset); len(ids) != 3 {
		t.Fatalf("issued %d preset requests %v, want 3", len(ids), ids)
	}

	steps := []struct {
		msg  []byte
		want codec.Status
	}{
		{presetMsg(t, 12, 150), codec.Awaiting},
		{objectMsg(t, Object{Type: TypeKeymap, ID: 12, Name: "Piano Map", Form: FormNibble}), codec.Ignored},
		{presetMsg(t, 7, 1), codec.Awaiting},
		{presetMsg(t, 3, 703), codec.Complete},
	}
	for i, st := range steps {
		res, err = c.Receive(st.msg)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Status != st.want {
			t.Fatalf("step %d: status %s, want %s", i, res.Status, st.want)
		}
	}
	if ids := dev.requests(TypeFXPreset); len(ids) != 3 {
		t.Errorf("requests after completion %v", ids)
	}

	m := res.Model
	if m.StudioName != "Big Hall Studio" || m.Studio != 5 {
		t.Errorf("studio %d %q", m.Studio, m.StudioName)
	}
	checks := map[string]int{
		"fx1alg":      1,
		"fx2alg":      0,
		"fx3alg":      150,
		"fx5alg":      703,
		"fxmod1param": 2,
		"fxmod2param": 2,
		"fxmod3param": 0,
	}
	for k, want := range checks {
		if got := m.Value(k); got != want {
			t.Errorf("%s = %d, want %d", k, got, want)
		}
	}
	if name, ok := c.ObjectName(codec.ObjectKey{Type: TypeKeymap, ID: 12}); !ok || name != "Piano Map" {
		t.Errorf("keymap name %q, %v", name, ok)
	}
	waited, err := c.Wait(context.Background())
	if err != nil || waited != m {
		t.Errorf("Wait = %v, %v", waited, err)
	}

	// Emitting turns the indexes back into codes.
	msg, err := c.Emit(m, true, false)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	obj, err := DecodeWrite(msg)
	if err != nil {
		t.Fatalf("DecodeWrite: %v", err)
	}
	if obj.ID != 0 {
		t.Errorf("working memory id %d", obj.ID)
	}
	kdfx := obj.Data[pgmSize:]
	if kdfx[0] != tagKDFX || kdfx[3] != 5 || kdfx[5] != 3 || kdfx[9] != 21 || kdfx[13] != 0 {
		t.Errorf("KDFX segment % X", kdfx[:16])
	}
}

func TestProgramNameNormalized(t *testing.T) {
	obj, err := DecodeWrite(programMsg(t, 2, 0, nil))
	if err != nil {
		t.Fatalf("DecodeWrite: %v", err)
	}
	// EncodeWrite cleans names too, so splice the raw name in by hand.
	clean := objectMsg(t, obj)
	raw := "Bad\x01Name_abcdefghijklmno"
	msg := append([]byte{}, clean[:headerSize]...)
	msg = append(msg, raw...)
	msg = append(msg, clean[headerSize+len(obj.Name):]...)

	c, _ := newTestCodec(time.Minute)
	res, err := c.Parse(msg)
	if err != nil || res.Status != codec.Complete {
		t.Fatalf("Parse = %s, %v", res.Status, err)
	}
	if want := "Bad Name_abcdefg"; res.Model.Name != want {
		t.Fatalf("name %q, want %q", res.Model.Name, want)
	}

	again, err := c.Emit(res.Model, false, true)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	res2, err := c.Parse(again)
	if err != nil || res2.Model.Name != res.Model.Name {
		t.Fatalf("round trip name %q, %v", res2.Model.Name, err)
	}
}

func TestUnrelatedFailuresIgnoredWhileWaiting(t *testing.T) {
	c, _ := newTestCodec(time.Minute)
	if _, err := c.Parse(kdfxProgram(t)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	badKeymap := objectMsg(t, Object{Type: TypeKeymap, ID: 9, Name: "Keys", Form: FormNibble, Data: []byte{1, 2, 3}})
	badKeymap[len(badKeymap)-2] ^= 0x01

	for _, msg := range [][]byte{
		EncodeReply(0, codec.ObjectKey{Type: TypeKeymap, ID: 9}, 1),
		badKeymap,
	} {
		res, err := c.Receive(msg)
		if err != nil || res.Status != codec.Ignored {
			t.Fatalf("unrelated reply = %s, %v", res.Status, err)
		}
		if c.State() != resolve.Waiting {
			t.Fatalf("state %s after an unrelated reply", c.State())
		}
	}

	c.Receive(studioMsg(t, 5, [Buses]int{7}))
	res, err := c.Receive(presetMsg(t, 7, 1))
	if err != nil || res.Status != codec.Complete {
		t.Fatalf("preset = %s, %v", res.Status, err)
	}
}

func TestUnknownFXParamIsCorrupt(t *testing.T) {
	c, _ := newTestCodec(time.Minute)
	c.Parse(programMsg(t, KDFXFormat, 5, func(m *param.Model) {
		m.Set("fxmod1bus", 1)
		m.Set("fxmod1param", 40)
	}))
	c.Receive(studioMsg(t, 5, [Buses]int{7}))
	_, err := c.Receive(presetMsg(t, 7, 1))
	var corrupt *codec.CorruptError
	if !errors.As(err, &corrupt) || corrupt.Field != "fxmod1param" {
		t.Fatalf("err = %v", err)
	}
	if c.State() != resolve.Idle {
		t.Errorf("state %s after failure", c.State())
	}
}

func TestStudioZeroNeedsNoRequests(t *testing.T) {
	c, dev := newTestCodec(time.Minute)
	res, err := c.Parse(programMsg(t, KDFXFormat, 0, func(m *param.Model) {
		m.Set("fxmod1bus", 2)
		m.Set("fxmod1param", 9)
	}))
	if err != nil || res.Status != codec.Complete {
		t.Fatalf("Parse = %s, %v", res.Status, err)
	}
	if len(dev.sent) != 0 || res.Model.Value("fxmod1param") != 0 {
		t.Errorf("sent %d, fxmod1param %d", len(dev.sent), res.Model.Value("fxmod1param"))
	}
}

func TestDependencyTimeout(t *testing.T) {
	c, _ := newTestCodec(20 * time.Millisecond)
	if _, err := c.Parse(kdfxProgram(t)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Wait(ctx)
	var te *codec.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if len(te.Pending) != 1 || te.Pending[0] != (codec.ObjectKey{Type: TypeStudio, ID: 5}) {
		t.Errorf("pending %v", te.Pending)
	}
	if c.State() != resolve.Idle {
		t.Errorf("state %s", c.State())
	}
}

func TestDNAKFailsPendingDecode(t *testing.T) {
	c, _ := newTestCodec(time.Minute)
	c.Parse(kdfxProgram(t))
	_, err := c.Receive(EncodeReply(0, codec.ObjectKey{Type: TypeStudio, ID: 5}, 1))
	var rej *codec.RejectedError
	if !errors.As(err, &rej) || rej.Reason != "object not found" {
		t.Fatalf("err = %v", err)
	}
	if c.State() != resolve.Idle {
		t.Errorf("state %s", c.State())
	}
	res, err := c.Receive(EncodeReply(0, codec.ObjectKey{Type: TypeProgram, ID: 123}, 0))
	if err != nil || res.Status != codec.Acknowledged {
		t.Errorf("DACK = %s, %v", res.Status, err)
	}
}

func TestNewProgramCancelsPending(t *testing.T) {
	c, _ := newTestCodec(time.Minute)
	c.Parse(kdfxProgram(t))
	res, err := c.Parse(programMsg(t, 2, 0, nil))
	if err != nil || res.Status != codec.Complete {
		t.Fatalf("second Parse = %s, %v", res.Status, err)
	}
	res, err = c.Receive(studioMsg(t, 5, [Buses]int{7}))
	if err != nil || res.Status != codec.Ignored {
		t.Errorf("stale studio = %s, %v", res.Status, err)
	}
}

func TestCorruptPrograms(t *testing.T) {
	body := func(edit func(data []byte) []byte) []byte {
		obj, err := DecodeWrite(programMsg(t, 2, 0, nil))
		if err != nil {
			t.Fatalf("DecodeWrite: %v", err)
		}
		obj.Data = edit(obj.Data)
		return objectMsg(t, obj)
	}
	cal := pgmSize + lyrSize
	tests := []struct {
		name  string
		msg   []byte
		field string
	}{
		{"algorithm 0", body(func(d []byte) []byte { d[cal+1] = 0; return d }), "l0alg"},
		{"algorithm 32", body(func(d []byte) []byte { d[cal+1] = 32; return d }), "l0alg"},
		{"no layers", body(func(d []byte) []byte { d[2] = 0; return d }), "layers"},
		{"33 layers", body(func(d []byte) []byte { d[2] = 33; return d }), "layers"},
		{"size", body(func(d []byte) []byte { return append(d, 0) }), "size"},
		{"layer count vs size", body(func(d []byte) []byte { d[2] = 2; return d }), "size"},
		{"pgm tag", body(func(d []byte) []byte { d[0] = 0x09; return d }), "pgm"},
		{"page tag", body(func(d []byte) []byte { d[cal+calSize] = 0; return d }), "l0f1"},
		{"selector", body(func(d []byte) []byte { d[cal+calSize+1] = 80; return d }), "l0f1sel"},
	}
	for _, tc := range tests {
		c, _ := newTestCodec(time.Minute)
		_, err := c.Parse(tc.msg)
		var corrupt *codec.CorruptError
		if !errors.As(err, &corrupt) || corrupt.Field != tc.field {
			t.Errorf("%s: err = %v, want corrupt %s", tc.name, err, tc.field)
		}
		if c.State() != resolve.Idle {
			t.Errorf("%s: state %s", tc.name, c.State())
		}
	}
}

func TestEmitRejectsBadShape(t *testing.T) {
	c, _ := newTestCodec(time.Minute)
	m := c.NewModel()
	m.Bank, m.Number = 0, 0
	if _, err := c.Emit(m, false, false); err == nil {
		t.Errorf("Emit to id 0 accepted")
	}
	if _, err := c.Emit(m, true, false); err != nil {
		t.Errorf("Emit of a new model: %v", err)
	}
	m.Set("l0f1sel", 99)
	if _, err := c.Emit(m, true, false); err == nil {
		t.Errorf("Emit accepted selector 99")
	}
}
