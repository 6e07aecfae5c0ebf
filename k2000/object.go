package k2000

import (
	"bytes"
	"fmt"

	"synthmcp/codec"
	"synthmcp/sysex"
)

const (
	kurzweilID = 0x07
	productID  = 0x78

	opDACK  = 0x02
	opDNAK  = 0x03
	opWrite = 0x09
	opRead  = 0x0A

	headerSize = 12 // F0 through the size field
)

// Body encodings selected by the form byte.
const (
	FormNibble   byte = 0
	FormSevenBit byte = 1
)

// Object types.
const (
	TypeStudio   = 113
	TypeFXPreset = 114
	TypeProgram  = 132
	TypeKeymap   = 133
)

// MaxNameLen is the longest object name the K2000 displays.
const MaxNameLen = 16

// Object is one device-resident object with its body decoded to 8-bit
// bytes.
type Object struct {
	Type int
	ID   int
	Name string
	Form byte
	Data []byte
}

func (o Object) Key() codec.ObjectKey {
	return codec.ObjectKey{Type: o.Type, ID: o.ID}
}

// EncodeWrite frames o as a WRITE message.
func EncodeWrite(dev byte, o Object) ([]byte, error) {
	var body []byte
	switch o.Form {
	case FormNibble:
		body = sysex.NibblePack(o.Data)
	case FormSevenBit:
		body = sysex.EightToSevenBit(o.Data)
	default:
		return nil, fmt.Errorf("unknown form %d", o.Form)
	}
	if len(o.Data) >= 1<<21 {
		return nil, fmt.Errorf("object of %d bytes is too large", len(o.Data))
	}

	out := make([]byte, 0, headerSize+len(o.Name)+len(body)+4)
	out = append(out, sysex.Start, kurzweilID, dev&0x7F, productID, opWrite)
	out = append14(out, o.Type)
	out = append14(out, o.ID)
	out = append21(out, len(o.Data))
	out = append(out, nameBytes(o.Name)...)
	out = append(out, 0x00, o.Form)
	out = append(out, body...)
	out = append(out, checksum(body), sysex.End)
	return out, nil
}

// DecodeWrite parses a WRITE message. When the header is intact but the
// body is not, the returned object still carries its type and id so the
// caller can tell which request failed.
func DecodeWrite(msg []byte) (Object, error) {
	if !isKurzweil(msg) || msg[4] != opWrite {
		return Object{}, codec.ErrUnrecognized
	}
	if len(msg) < headerSize+4 {
		return Object{}, codec.ErrUnrecognized
	}
	o := Object{Type: get14(msg[5:]), ID: get14(msg[7:])}
	size := get21(msg[9:])

	rest := msg[headerSize : len(msg)-1]
	end := bytes.IndexByte(rest, 0x00)
	if end < 0 || end+2 >= len(rest) {
		return o, codec.Corrupt("name", "no terminator")
	}
	o.Name = string(nameBytes(string(rest[:end])))
	o.Form = rest[end+1]
	body, sum := rest[end+2:len(rest)-1], rest[len(rest)-1]

	if !sysex.Clean(msg) {
		return o, codec.Corrupt("body", "byte above 0x7F")
	}
	if want := checksum(body); sum != want {
		return o, codec.Corrupt("checksum", "got 0x%02X, want 0x%02X", sum, want)
	}
	switch o.Form {
	case FormNibble:
		o.Data = sysex.NibbleExpand(body, 0)
	case FormSevenBit:
		o.Data = sysex.SevenBitExpand(body, 0)
	default:
		return o, codec.Corrupt("form", "unknown form %d", o.Form)
	}
	if len(o.Data) != size {
		return o, codec.Corrupt("size", "header declares %d bytes, body holds %d", size, len(o.Data))
	}
	return o, nil
}

// EncodeRead builds a request for a whole object.
func EncodeRead(dev byte, typ, id int, form byte) []byte {
	out := []byte{sysex.Start, kurzweilID, dev & 0x7F, productID, opRead}
	out = append14(out, typ)
	out = append14(out, id)
	out = append21(out, 0)
	return append(out, form, sysex.End)
}

// Reply is a DACK or DNAK from the device.
type Reply struct {
	Ack  bool
	Key  codec.ObjectKey
	Code int
}

// Err returns nil for a DACK and a *codec.RejectedError for a DNAK.
func (r Reply) Err() error {
	if r.Ack {
		return nil
	}
	return &codec.RejectedError{Code: r.Code, Reason: nakReason(r.Code)}
}

func DecodeReply(msg []byte) (Reply, error) {
	if !isKurzweil(msg) {
		return Reply{}, codec.ErrUnrecognized
	}
	switch {
	case msg[4] == opDACK && len(msg) == 10:
		return Reply{Ack: true, Key: codec.ObjectKey{Type: get14(msg[5:]), ID: get14(msg[7:])}}, nil
	case msg[4] == opDNAK && len(msg) == 11:
		return Reply{Key: codec.ObjectKey{Type: get14(msg[5:]), ID: get14(msg[7:])}, Code: int(msg[9])}, nil
	}
	return Reply{}, codec.ErrUnrecognized
}

// EncodeReply builds a DACK, or a DNAK when code is nonzero.
func EncodeReply(dev byte, key codec.ObjectKey, code int) []byte {
	op := byte(opDACK)
	if code != 0 {
		op = opDNAK
	}
	out := []byte{sysex.Start, kurzweilID, dev & 0x7F, productID, op}
	out = append14(out, key.Type)
	out = append14(out, key.ID)
	if code != 0 {
		out = append(out, byte(code)&0x7F)
	}
	return append(out, sysex.End)
}

func nakReason(code int) string {
	switch code {
	case 1:
		return "object not found"
	case 2:
		return "write-protected"
	case 3:
		return "memory full"
	}
	return "unknown error"
}

// ObjectID maps a bank (0-9) and number (0-99) to an object id.
func ObjectID(bank, number int) int {
	return bank*100 + number
}

// Location is the inverse of ObjectID.
func Location(id int) (bank, number int) {
	return id / 100, id % 100
}

// ValidLocation checks that bank and number address a storable object. Id 0
// is the edit buffer.
func ValidLocation(bank, number int) error {
	if bank < 0 || bank > 9 {
		return fmt.Errorf("bank must be in range 0–9, got %d", bank)
	}
	if number < 0 || number > 99 {
		return fmt.Errorf("number must be in range 0–99, got %d", number)
	}
	if bank == 0 && number == 0 {
		return fmt.Errorf("object id 0 is reserved")
	}
	return nil
}

func isKurzweil(msg []byte) bool {
	return len(msg) >= 10 && msg[0] == sysex.Start && msg[1] == kurzweilID &&
		msg[3] == productID && msg[len(msg)-1] == sysex.End
}

func checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return sum & 0x7F
}

// nameBytes cuts name to MaxNameLen and replaces unprintable bytes with
// spaces.
func nameBytes(name string) []byte {
	out := make([]byte, 0, MaxNameLen)
	for i := 0; i < len(name) && len(out) < MaxNameLen; i++ {
		c := name[i]
		if c < 0x20 || c > 0x7E {
			c = ' '
		}
		out = append(out, c)
	}
	return out
}

func append14(out []byte, v int) []byte {
	return append(out, byte(v>>7)&0x7F, byte(v)&0x7F)
}

func append21(out []byte, v int) []byte {
	return append(out, byte(v>>14)&0x7F, byte(v>>7)&0x7F, byte(v)&0x7F)
}

func get14(b []byte) int {
	return int(b[0]&0x7F)<<7 | int(b[1]&0x7F)
}

func get21(b []byte) int {
	return int(b[0]&0x7F)<<14 | int(b[1]&0x7F)<<7 | int(b[2]&0x7F)
}
