package param

import (
	"fmt"
	"strconv"
	"strings"

	"synthmcp/sysex"
)

// Kind classifies how a slot maps parameters onto bytes.
type Kind int

const (
	// Reserved bytes are skipped on decode and zero-filled on encode.
	Reserved Kind = iota
	// Simple slots hold one parameter in one byte.
	Simple
	// Composite slots pack several parameters into one byte.
	Composite
	// Structural slots repeat a template at a stride for an index range.
	Structural
)

func (k Kind) String() string {
	switch k {
	case Reserved:
		return "reserved"
	case Simple:
		return "simple"
	case Composite:
		return "composite"
	case Structural:
		return "structural"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is one bit field inside a byte. Name is a template: structural
// slots and indexed tables substitute their indexes for %d verbs. Bit is the
// position of the field inside the parameter value, so a value can be split
// across several bytes.
type Field struct {
	Name  string
	Shift uint
	Width uint
	Bit   uint
	Min   int
	Max   int
}

// Byte is a field covering a whole byte with values 0..max.
func Byte(name string, max int) Field {
	return Field{Name: name, Width: 8, Max: max}
}

// Bits is a sub-byte field.
func Bits(name string, shift, width uint, max int) Field {
	return Field{Name: name, Shift: shift, Width: width, Max: max}
}

// Flag is a one-bit field.
func Flag(name string, shift uint) Field {
	return Field{Name: name, Shift: shift, Width: 1, Max: 1}
}

// High marks f as holding the value bits from bit upward.
func (f Field) High(bit uint) Field {
	f.Bit = bit
	return f
}

// Slot is a run of bytes at a fixed offset.
type Slot struct {
	Offset int
	Count  int
	Stride int
	First  int
	Fields []Field

	reserved bool
}

// At places fields in the byte at offset.
func At(offset int, fields ...Field) Slot {
	return Slot{Offset: offset, Count: 1, Stride: 1, Fields: fields}
}

// Repeat places fields in count bytes starting at offset, stride bytes
// apart, substituting first, first+1, ... for the templates' %d.
func Repeat(offset, count, stride, first int, fields ...Field) Slot {
	return Slot{Offset: offset, Count: count, Stride: stride, First: first, Fields: fields}
}

// Skip declares n reserved bytes at offset.
func Skip(offset, n int) Slot {
	return Slot{Offset: offset, Count: n, Stride: 1, reserved: true}
}

func (s Slot) Kind() Kind {
	switch {
	case s.reserved:
		return Reserved
	case s.Count > 1:
		return Structural
	case len(s.Fields) > 1:
		return Composite
	}
	return Simple
}

// Table maps parameter names onto a fixed-size byte block.
type Table struct {
	size   int
	slots  []Slot
	params []Parameter // wire order, templates unexpanded per outer index
	byName map[string]int
}

// MustTable builds a table of size bytes and panics when a slot falls
// outside the block or two fields claim the same bit.
func MustTable(size int, slots ...Slot) *Table {
	t, err := NewTable(size, slots...)
	if err != nil {
		panic(err)
	}
	return t
}

func NewTable(size int, slots ...Slot) (*Table, error) {
	t := &Table{size: size, slots: slots, byName: make(map[string]int)}
	used := make([]byte, size)
	for _, s := range slots {
		for k := 0; k < s.Count; k++ {
			off := s.Offset + k*s.Stride
			if off < 0 || off >= size {
				return nil, fmt.Errorf("slot at %d: byte %d outside table of %d bytes", s.Offset, off, size)
			}
			if s.reserved {
				continue
			}
			for _, f := range s.Fields {
				if f.Width == 0 || f.Shift+f.Width > 8 {
					return nil, fmt.Errorf("field %s: bad bit range %d+%d", f.Name, f.Shift, f.Width)
				}
				mask := byte(1<<f.Width-1) << f.Shift
				if used[off]&mask != 0 {
					return nil, fmt.Errorf("field %s overlaps another field in byte %d", f.Name, off)
				}
				used[off] |= mask
			}
		}
		if s.reserved {
			continue
		}
		for k := 0; k < s.Count; k++ {
			for _, f := range s.Fields {
				name := f.Name
				if s.Count > 1 {
					name = fillLast(name, s.First+k)
				}
				t.addParam(name, f)
			}
		}
	}
	return t, nil
}

func (t *Table) addParam(name string, f Field) {
	max := f.Max
	if max == 0 {
		max = 1<<(f.Bit+f.Width) - 1
	}
	if i, ok := t.byName[name]; ok {
		p := &t.params[i]
		if max > p.Max {
			p.Max = max
		}
		if f.Bit == 0 {
			p.Min = f.Min
		}
		return
	}
	t.byName[name] = len(t.params)
	t.params = append(t.params, Parameter{Name: name, Min: f.Min, Max: max})
}

// Size is the number of bytes the table covers.
func (t *Table) Size() int {
	return t.size
}

// Slots returns the slot list in wire order.
func (t *Table) Slots() []Slot {
	return t.slots
}

// Lookup returns the declared range of a parameter of a table without
// outer index.
func (t *Table) Lookup(name string) (Parameter, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return t.params[i], true
}

// Names returns the parameter names in wire order.
func (t *Table) Names() []string {
	return t.NamesIndexed(-1)
}

// NamesIndexed returns the names with index substituted for the outer %d.
func (t *Table) NamesIndexed(index int) []string {
	names := make([]string, len(t.params))
	for i, p := range t.params {
		names[i] = outer(p.Name, index)
	}
	return names
}

// Declare registers every parameter range of the table on m.
func (t *Table) Declare(m *Model) {
	t.DeclareIndexed(m, -1)
}

func (t *Table) DeclareIndexed(m *Model, index int) {
	for _, p := range t.params {
		p.Name = outer(p.Name, index)
		m.Declare(p)
	}
}

// Decode reads the table from data at offset into m.
func (t *Table) Decode(data []byte, offset int, m *Model) error {
	return t.DecodeIndexed(data, offset, -1, m)
}

// DecodeIndexed is Decode for tables whose names carry an outer index,
// such as a per-layer block.
func (t *Table) DecodeIndexed(data []byte, offset, index int, m *Model) error {
	if offset < 0 || offset+t.size > len(data) {
		return fmt.Errorf("table of %d bytes at offset %d overruns %d bytes of data", t.size, offset, len(data))
	}
	t.DeclareIndexed(m, index)
	acc := make(map[string]int)
	var order []string
	for _, s := range t.slots {
		if s.reserved {
			continue
		}
		for k := 0; k < s.Count; k++ {
			b := data[offset+s.Offset+k*s.Stride]
			for _, f := range s.Fields {
				key := t.key(f, s, k, index)
				if _, ok := acc[key]; !ok {
					order = append(order, key)
				}
				acc[key] |= sysex.GetBits(b, f.Shift, f.Width) << f.Bit
			}
		}
	}
	for _, key := range order {
		m.Set(key, acc[key])
	}
	return nil
}

// Encode writes the table for m into out at offset. Reserved bytes and bits
// no field claims are written as zero.
func (t *Table) Encode(m *Model, out []byte, offset int) error {
	return t.EncodeIndexed(m, out, offset, -1)
}

func (t *Table) EncodeIndexed(m *Model, out []byte, offset, index int) error {
	if offset < 0 || offset+t.size > len(out) {
		return fmt.Errorf("table of %d bytes at offset %d overruns %d bytes of output", t.size, offset, len(out))
	}
	for _, s := range t.slots {
		for k := 0; k < s.Count; k++ {
			pos := offset + s.Offset + k*s.Stride
			var b byte
			for _, f := range s.Fields {
				v := m.Value(t.key(f, s, k, index))
				b = sysex.SetBits(b, f.Shift, f.Width, v>>f.Bit)
			}
			out[pos] = b
		}
	}
	return nil
}

func (t *Table) key(f Field, s Slot, k, index int) string {
	name := f.Name
	if s.Count > 1 {
		name = fillLast(name, s.First+k)
	}
	return outer(name, index)
}

// fillLast substitutes v for the last %d of a template; structural indexes
// always come after an outer index.
func fillLast(name string, v int) string {
	i := strings.LastIndex(name, "%d")
	if i < 0 {
		return name
	}
	return name[:i] + strconv.Itoa(v) + name[i+2:]
}

func outer(name string, index int) string {
	if index < 0 {
		return name
	}
	i := strings.Index(name, "%d")
	if i < 0 {
		return name
	}
	return name[:i] + strconv.Itoa(index) + name[i+2:]
}
