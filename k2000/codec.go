// Package k2000 reads and writes Kurzweil K2000 program objects. A program
// in a KDFX format refers to a studio and, through it, to effect presets
// that are fetched from the device before the decode can finish.
package k2000

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"synthmcp/codec"
	"synthmcp/param"
	"synthmcp/resolve"
)

var _ codec.Codec = (*Codec)(nil)

// Codec handles one K2000. It owns the resolver of the program decode in
// flight, so two codecs never share a session.
type Codec struct {
	Device byte
	Form   byte

	resolver *resolve.Resolver

	mu    sync.Mutex
	names map[codec.ObjectKey]string
}

// New returns a codec for device id dev. Auxiliary objects are fetched
// through req and must all arrive within timeout.
func New(dev, form byte, req resolve.Requester, timeout time.Duration) *Codec {
	return &Codec{
		Device:   dev,
		Form:     form,
		resolver: resolve.New(req, timeout),
		names:    make(map[codec.ObjectKey]string),
	}
}

// NewRequester sends READ requests for objects through send.
func NewRequester(send func([]byte) error, dev, form byte) resolve.Requester {
	return resolve.RequesterFunc(func(typ, id int) error {
		return send(EncodeRead(dev, typ, id, form))
	})
}

func (c *Codec) Family() string {
	return "k2000"
}

func (c *Codec) NewModel() *param.Model {
	m := param.NewModel()
	declareProgram(m)
	m.Set("fmt", KDFXFormat)
	m.Set("layers", 1)
	m.Set("l0alg", 1)
	return m
}

func (c *Codec) Reachable(m *param.Model) []string {
	return programNames(m)
}

// Parse decodes a program WRITE. A program in a KDFX format with a studio
// suspends until the studio and its presets arrive through Receive. Every
// other message is handed to Receive.
func (c *Codec) Parse(msg []byte) (codec.Result, error) {
	obj, err := DecodeWrite(msg)
	if errors.Is(err, codec.ErrUnrecognized) || obj.Type != TypeProgram {
		return c.Receive(msg)
	}
	// A new program replaces any decode still waiting for replies.
	c.resolver.Cancel()
	if err != nil {
		return codec.Result{}, err
	}

	m := c.NewModel()
	m.Name = obj.Name
	m.Bank, m.Number = Location(obj.ID)
	if err := decodeProgram(obj.Data, m); err != nil {
		return codec.Result{}, err
	}
	if m.Value("fmt") < KDFXFormat {
		m.StudioName = NotConnected
		return codec.Result{Status: codec.Complete, Model: m}, nil
	}

	dec := &programDecode{model: m}
	if m.Studio == 0 {
		m.StudioName = NotConnected
		return c.resolver.Start(dec, nil)
	}
	log.Printf("[k2000] program %q uses studio %d", m.Name, m.Studio)
	return c.resolver.Start(dec, []codec.ObjectKey{{Type: TypeStudio, ID: m.Studio}})
}

// Receive routes a reply from the device. Objects the decode in flight
// waits for go to the resolver; other objects only update the name cache.
// A DNAK or a corrupt copy of a pending object fails the decode; for any
// other object it is logged and ignored.
func (c *Codec) Receive(msg []byte) (codec.Result, error) {
	obj, err := DecodeWrite(msg)
	if !errors.Is(err, codec.ErrUnrecognized) {
		if err != nil {
			if !c.resolver.Reject(obj.Key(), err) {
				log.Printf("[k2000] ignoring %s: %v", obj.Key(), err)
				return codec.Result{Status: codec.Ignored}, nil
			}
			return codec.Result{}, fmt.Errorf("%s: %w", obj.Key(), err)
		}
		c.remember(obj.Key(), obj.Name)
		return c.resolver.Deliver(obj.Key(), obj)
	}

	reply, err := DecodeReply(msg)
	if err != nil {
		return codec.Result{}, err
	}
	if reply.Ack {
		return codec.Result{Status: codec.Acknowledged}, nil
	}
	nak := reply.Err()
	if !c.resolver.Reject(reply.Key, nak) {
		log.Printf("[k2000] ignoring %s: %v", reply.Key, nak)
		return codec.Result{Status: codec.Ignored}, nil
	}
	return codec.Result{}, fmt.Errorf("%s: %w", reply.Key, nak)
}

// Emit writes m as a program WRITE. FX mod parameters are converted from
// their indexes back to codes of the bus algorithms recorded in m.
func (c *Codec) Emit(m *param.Model, toWorkingMemory, toFile bool) ([]byte, error) {
	id := 0
	if !toWorkingMemory {
		if err := ValidLocation(m.Bank, m.Number); err != nil {
			return nil, err
		}
		id = ObjectID(m.Bank, m.Number)
	}
	shaped := m.Clone()
	if err := declareShape(shaped); err != nil {
		return nil, err
	}
	wire, err := fxModCodes(shaped)
	if err != nil {
		return nil, err
	}
	data, err := encodeProgram(wire)
	if err != nil {
		return nil, err
	}
	dev := c.Device
	if toFile {
		dev = 0
	}
	return EncodeWrite(dev, Object{Type: TypeProgram, ID: id, Name: m.Name, Form: c.Form, Data: data})
}

// RequestProgram builds a READ for the program at bank and number.
func (c *Codec) RequestProgram(bank, number int) ([]byte, error) {
	if err := ValidLocation(bank, number); err != nil {
		return nil, err
	}
	return EncodeRead(c.Device, TypeProgram, ObjectID(bank, number), c.Form), nil
}

// Wait blocks until the program decode in flight completes or fails.
func (c *Codec) Wait(ctx context.Context) (*param.Model, error) {
	return c.resolver.Wait(ctx)
}

// Cancel abandons the program decode in flight.
func (c *Codec) Cancel() {
	c.resolver.Cancel()
}

func (c *Codec) State() resolve.State {
	return c.resolver.State()
}

// ObjectName returns the name of an object seen in any reply.
func (c *Codec) ObjectName(key codec.ObjectKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.names[key]
	return n, ok
}

func (c *Codec) remember(key codec.ObjectKey, name string) {
	c.mu.Lock()
	c.names[key] = name
	c.mu.Unlock()
}

// programDecode is a program waiting for its studio and FX presets.
type programDecode struct {
	model   *param.Model
	presets [Buses]int
	algs    [Buses]int
}

func (d *programDecode) Reply(key codec.ObjectKey, payload any) ([]codec.ObjectKey, error) {
	obj, ok := payload.(Object)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", payload, key)
	}
	switch key.Type {
	case TypeStudio:
		st, err := DecodeStudio(obj.Data)
		if err != nil {
			return nil, err
		}
		d.model.StudioName = obj.Name
		d.presets = st.Presets
		var keys []codec.ObjectKey
		for _, id := range st.Presets {
			if id != 0 {
				keys = append(keys, codec.ObjectKey{Type: TypeFXPreset, ID: id})
			}
		}
		return keys, nil
	case TypeFXPreset:
		p, err := DecodeFXPreset(obj.Data)
		if err != nil {
			return nil, err
		}
		for bus, id := range d.presets {
			if id == key.ID {
				d.algs[bus] = p.Algorithm
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected reply %s", key)
}

// Resume turns the raw FX mod parameter codes into indexes of the bus
// algorithms' parameter lists. Slots on an empty bus read 0.
func (d *programDecode) Resume() (*param.Model, error) {
	m := d.model
	for bus := 1; bus <= Buses; bus++ {
		m.Set(fxAlgKey(bus), d.algs[bus-1])
	}
	for slot := 1; slot <= FXModSlots; slot++ {
		key := fxModKey("param", slot)
		alg, ok := busAlgorithm(m, m.Value(fxModKey("bus", slot)))
		if !ok {
			m.Set(key, 0)
			continue
		}
		code := m.Value(key)
		i, ok := alg.ParamIndex(code)
		if !ok {
			return nil, codec.Corrupt(key, "code %d is not a parameter of %s", code, alg.Name)
		}
		m.Set(key, i)
	}
	return m, nil
}

// fxModCodes returns a copy of m whose FX mod parameters hold wire codes.
func fxModCodes(m *param.Model) (*param.Model, error) {
	if m.Value("fmt") < KDFXFormat {
		return m, nil
	}
	w := m.Clone()
	for slot := 1; slot <= FXModSlots; slot++ {
		key := fxModKey("param", slot)
		alg, ok := busAlgorithm(m, m.Value(fxModKey("bus", slot)))
		if !ok {
			w.Set(key, 0)
			continue
		}
		code, ok := alg.ParamCode(m.Value(key))
		if !ok {
			return nil, fmt.Errorf("%s: index %d outside the %d parameters of %s", key, m.Value(key), len(alg.Params), alg.Name)
		}
		w.Set(key, code)
	}
	return w, nil
}

func busAlgorithm(m *param.Model, bus int) (*FXAlgorithm, bool) {
	if bus < 1 || bus > Buses {
		return nil, false
	}
	return LookupFXAlgorithm(m.Value(fxAlgKey(bus)))
}
