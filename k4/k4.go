// Package k4 reads and writes Kawai K4 single patches.
package k4

import (
	"fmt"
	"strings"

	"synthmcp/codec"
	"synthmcp/param"
	"synthmcp/sysex"
)

const (
	kawaiID   = 0x40
	groupID   = 0x00
	machineID = 0x04

	cmdOneSingle    = 0x20
	cmdBlock        = 0x21
	cmdAll          = 0x22
	cmdRequestOne   = 0x00
	cmdRequestBlock = 0x01

	cmdWriteComplete  = 0x40
	cmdWriteError     = 0x41
	cmdWriteProtected = 0x42
	cmdNoCard         = 0x43

	headerSize = 8
)

// Message sizes in bytes, F0 and F7 included.
const (
	SingleSize      = headerSize + recordSize + 1
	BlockSize       = headerSize + Singles*recordSize + 1
	AllSize         = headerSize + 15114 + 1
	WriteStatusSize = 7
)

const (
	RegionInternal = 0x00
	RegionExternal = 0x02

	// WorkingMemory is the position byte addressing the edit buffer.
	WorkingMemory = 0x7F

	Banks          = 8
	PatchesPerBank = 16
	Singles        = 64 // per memory region

	NameLen = nameLen
)

var _ codec.Codec = (*Codec)(nil)

// Codec handles one K4 on a MIDI channel (0..15).
type Codec struct {
	Channel byte
}

func New(channel byte) *Codec {
	return &Codec{Channel: channel & 0x0F}
}

func (c *Codec) Family() string {
	return "k4"
}

func (c *Codec) NewModel() *param.Model {
	m := param.NewModel()
	singleTable.Declare(m)
	m.Name = strings.Repeat(" ", nameLen)
	return m
}

// Reachable is the same for every K4 single: the layout has no variable
// structure.
func (c *Codec) Reachable(*param.Model) []string {
	return singleTable.Names()
}

// Parse decodes a single dump, lists the candidates of a block or all-data
// dump, and turns write status reports into an acknowledgement or a
// *codec.RejectedError.
func (c *Codec) Parse(msg []byte) (codec.Result, error) {
	if len(msg) == WriteStatusSize {
		if err := ParseWriteStatus(msg); err != nil {
			return codec.Result{}, err
		}
		return codec.Result{Status: codec.Acknowledged}, nil
	}
	if !isKawai(msg) || len(msg) < headerSize+1 {
		return codec.Result{}, codec.ErrUnrecognized
	}

	switch {
	case msg[3] == cmdOneSingle && len(msg) == SingleSize:
		if msg[len(msg)-1] != sysex.End {
			return codec.Result{}, codec.ErrUnrecognized
		}
		m := c.NewModel()
		if msg[7] != WorkingMemory {
			m.Bank, m.Number = LocationOf(wireAddress(msg[6], msg[7]))
		}
		if err := decodeRecord(msg[headerSize:headerSize+recordSize], m); err != nil {
			return codec.Result{}, err
		}
		return codec.Result{Status: codec.Complete, Model: m}, nil

	case msg[3] == cmdBlock && len(msg) == BlockSize,
		msg[3] == cmdAll && len(msg) == AllSize:
		cands, err := Candidates(msg)
		if err != nil {
			return codec.Result{}, err
		}
		return codec.Result{Status: codec.Select, Candidates: cands}, nil
	}
	return codec.Result{}, codec.ErrUnrecognized
}

// Candidates lists the singles inside a block or all-data dump. Offsets are
// absolute positions in msg to pass to ParseAt.
func Candidates(msg []byte) ([]codec.Candidate, error) {
	if !isBulk(msg) {
		return nil, codec.ErrUnrecognized
	}
	first := firstBank(msg[6])
	cands := make([]codec.Candidate, 0, Singles)
	for i := 0; i < Singles; i++ {
		off := headerSize + i*recordSize
		cands = append(cands, codec.Candidate{
			Name:   sanitizeName(msg[off : off+nameLen]),
			Offset: off,
			Bank:   first + i/PatchesPerBank,
			Number: i % PatchesPerBank,
		})
	}
	return cands, nil
}

// ParseAt decodes the single at offset inside a bulk dump.
func (c *Codec) ParseAt(msg []byte, offset int) (*param.Model, error) {
	if !isBulk(msg) {
		return nil, codec.ErrUnrecognized
	}
	i := (offset - headerSize) / recordSize
	if offset < headerSize || (offset-headerSize)%recordSize != 0 || i >= Singles {
		return nil, fmt.Errorf("offset %d is not the start of a single", offset)
	}
	m := c.NewModel()
	m.Bank = firstBank(msg[6]) + i/PatchesPerBank
	m.Number = i % PatchesPerBank
	if err := decodeRecord(msg[offset:offset+recordSize], m); err != nil {
		return nil, fmt.Errorf("single %d: %w", i, err)
	}
	return m, nil
}

// Emit builds a single dump for m. toFile writes channel 0 so the file is
// not tied to a device.
func (c *Codec) Emit(m *param.Model, toWorkingMemory, toFile bool) ([]byte, error) {
	region, position := byte(RegionInternal), byte(WorkingMemory)
	if !toWorkingMemory {
		if err := ValidLocation(m.Bank, m.Number); err != nil {
			return nil, err
		}
		region, position = wireSplit(AddressOf(m.Bank, m.Number))
	}
	ch := c.Channel
	if toFile {
		ch = 0
	}

	out := make([]byte, SingleSize)
	copy(out, []byte{sysex.Start, kawaiID, ch, cmdOneSingle, groupID, machineID, region, position})
	if err := encodeRecord(m, out[headerSize:headerSize+recordSize]); err != nil {
		return nil, err
	}
	out[SingleSize-1] = sysex.End
	return out, nil
}

// RequestSingle asks for one single. A negative bank requests the edit
// buffer.
func (c *Codec) RequestSingle(bank, number int) ([]byte, error) {
	region, position := byte(RegionInternal), byte(WorkingMemory)
	if bank >= 0 {
		if err := ValidLocation(bank, number); err != nil {
			return nil, err
		}
		region, position = wireSplit(AddressOf(bank, number))
	}
	return []byte{sysex.Start, kawaiID, c.Channel, cmdRequestOne, groupID, machineID, region, position, sysex.End}, nil
}

// RequestBlock asks for all 64 singles of one memory region.
func (c *Codec) RequestBlock(external bool) []byte {
	region := byte(RegionInternal)
	if external {
		region = RegionExternal
	}
	return []byte{sysex.Start, kawaiID, c.Channel, cmdRequestBlock, groupID, machineID, region, 0x00, sysex.End}
}

// ParseWriteStatus interprets the status report a K4 sends after a write.
// It returns nil for a completed write.
func ParseWriteStatus(msg []byte) error {
	if len(msg) != WriteStatusSize || !isKawai(msg) || msg[6] != sysex.End {
		return codec.ErrUnrecognized
	}
	code := int(msg[3])
	switch code {
	case cmdWriteComplete:
		return nil
	case cmdWriteError:
		return &codec.RejectedError{Code: code, Reason: "write error"}
	case cmdWriteProtected:
		return &codec.RejectedError{Code: code, Reason: "memory is write-protected"}
	case cmdNoCard:
		return &codec.RejectedError{Code: code, Reason: "no external card"}
	}
	return codec.ErrUnrecognized
}

// AddressOf maps a location to its address byte: bank*16+number, so bit 6
// marks the external banks 4..7.
func AddressOf(bank, number int) byte {
	return byte(bank*PatchesPerBank + number)
}

// LocationOf is the inverse of AddressOf.
func LocationOf(addr byte) (bank, number int) {
	addr &= 0x7F
	return int(addr) / PatchesPerBank, int(addr) % PatchesPerBank
}

// ValidLocation checks that bank and number address a stored single.
func ValidLocation(bank, number int) error {
	if bank < 0 || bank >= Banks {
		return fmt.Errorf("bank must be in range 0–%d, got %d", Banks-1, bank)
	}
	if number < 0 || number >= PatchesPerBank {
		return fmt.Errorf("number must be in range 0–%d, got %d", PatchesPerBank-1, number)
	}
	return nil
}

// BankName returns the front panel name of a bank, such as "I-A" or "E-D".
func BankName(bank int) string {
	prefix := "I"
	if bank >= Banks/2 {
		prefix = "E"
	}
	return fmt.Sprintf("%s-%c", prefix, 'A'+rune(bank%(Banks/2)))
}

// Checksum is (0xA5 + sum of body) truncated to 7 bits.
func Checksum(body []byte) byte {
	sum := 0xA5
	for _, b := range body {
		sum += int(b)
	}
	return byte(sum) & 0x7F
}

func wireSplit(addr byte) (region, position byte) {
	if addr&0x40 != 0 {
		return RegionExternal, addr & 0x3F
	}
	return RegionInternal, addr & 0x3F
}

func wireAddress(region, position byte) byte {
	addr := position & 0x3F
	if region == RegionExternal {
		addr |= 0x40
	}
	return addr
}

func firstBank(region byte) int {
	if region == RegionExternal {
		return Banks / 2
	}
	return 0
}

func isKawai(msg []byte) bool {
	return len(msg) >= 6 && msg[0] == sysex.Start && msg[1] == kawaiID &&
		msg[4] == groupID && msg[5] == machineID
}

func isBulk(msg []byte) bool {
	if !isKawai(msg) || msg[len(msg)-1] != sysex.End {
		return false
	}
	return (msg[3] == cmdBlock && len(msg) == BlockSize) || (msg[3] == cmdAll && len(msg) == AllSize)
}
