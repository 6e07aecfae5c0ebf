package k2000

import (
	"fmt"

	"synthmcp/codec"
)

// Buses is the number of effect buses a studio routes: FX1..FX4 and AUX.
const Buses = 5

const (
	studioPresetOffset = 2
	studioRoutingSize  = 4
	studioSize         = studioPresetOffset + 2*Buses + studioRoutingSize
)

// Studio is the decoded body of a STUDIO object.
type Studio struct {
	Format  int
	Presets [Buses]int // FX preset id per bus, 0 for an empty bus
	Routing [studioRoutingSize]byte
}

func DecodeStudio(data []byte) (Studio, error) {
	var st Studio
	if len(data) < studioSize {
		return st, codec.Corrupt("studio", "body of %d bytes, want %d", len(data), studioSize)
	}
	st.Format = int(data[0])
	for i := range st.Presets {
		off := studioPresetOffset + 2*i
		st.Presets[i] = int(data[off])<<8 | int(data[off+1])
	}
	copy(st.Routing[:], data[studioPresetOffset+2*Buses:])
	return st, nil
}

func EncodeStudio(st Studio) []byte {
	out := make([]byte, studioSize)
	out[0] = byte(st.Format)
	for i, id := range st.Presets {
		off := studioPresetOffset + 2*i
		out[off], out[off+1] = byte(id>>8), byte(id)
	}
	copy(out[studioPresetOffset+2*Buses:], st.Routing[:])
	return out
}

// FXPreset is the decoded body of an FX_PRESET object.
type FXPreset struct {
	Algorithm int
	Params    []byte
}

func DecodeFXPreset(data []byte) (FXPreset, error) {
	if len(data) < 2 {
		return FXPreset{}, codec.Corrupt("fx preset", "body of %d bytes", len(data))
	}
	p := FXPreset{Algorithm: int(data[0])<<8 | int(data[1]), Params: data[2:]}
	if _, ok := LookupFXAlgorithm(p.Algorithm); !ok {
		return p, codec.Corrupt("fx preset algorithm", "unknown KDFX algorithm %d", p.Algorithm)
	}
	return p, nil
}

func EncodeFXPreset(p FXPreset) []byte {
	return append([]byte{byte(p.Algorithm >> 8), byte(p.Algorithm)}, p.Params...)
}

// FXAlgorithm is a KDFX effect algorithm. Params lists the modulation
// parameter codes in panel order; an FX mod slot stores the index of its
// code in this list.
type FXAlgorithm struct {
	Number int
	Name   string
	Params []int

	index map[int]int
}

var fxParamNames = map[int]string{
	1:  "Wet/Dry",
	2:  "Out Gain",
	3:  "Rvrb Time",
	4:  "HF Damping",
	5:  "Diff Scale",
	6:  "Size Scale",
	7:  "Density",
	8:  "Pre Dly",
	20: "Fdbk Level",
	21: "LFO Rate",
	22: "LFO Depth",
	23: "Tap Lvl",
	30: "Dly Time",
	31: "Dly Fdbk",
	32: "HF Cut",
	40: "Drive",
	41: "Tone",
	42: "Threshold",
	43: "Ratio",
}

var fxAlgorithms = []*FXAlgorithm{
	{Number: 1, Name: "MiniVerb", Params: []int{1, 2, 3, 4, 8}},
	{Number: 2, Name: "Dual MiniVerb", Params: []int{1, 2, 3, 4, 5, 6, 8}},
	{Number: 3, Name: "Gated MiniVerb", Params: []int{1, 2, 3, 7, 8, 42}},
	{Number: 4, Name: "Classic Place", Params: []int{1, 2, 3, 4, 5, 6, 7, 8}},
	{Number: 150, Name: "Chorus 1", Params: []int{1, 2, 21, 22, 23}},
	{Number: 151, Name: "Flanger 1", Params: []int{1, 2, 20, 21, 22}},
	{Number: 130, Name: "Complex Echo", Params: []int{1, 2, 30, 31, 32}},
	{Number: 703, Name: "Mono Distortion", Params: []int{1, 2, 40, 41}},
	{Number: 720, Name: "SoftKneeCompress", Params: []int{2, 42, 43}},
}

var fxByNumber = make(map[int]*FXAlgorithm)

func init() {
	for _, a := range fxAlgorithms {
		a.index = make(map[int]int, len(a.Params))
		for i, code := range a.Params {
			a.index[code] = i
		}
		fxByNumber[a.Number] = a
	}
}

func LookupFXAlgorithm(n int) (*FXAlgorithm, bool) {
	a, ok := fxByNumber[n]
	return a, ok
}

// ParamIndex returns the position of a parameter code in a's list.
func (a *FXAlgorithm) ParamIndex(code int) (int, bool) {
	i, ok := a.index[code]
	return i, ok
}

// ParamCode is the inverse of ParamIndex.
func (a *FXAlgorithm) ParamCode(index int) (int, bool) {
	if index < 0 || index >= len(a.Params) {
		return 0, false
	}
	return a.Params[index], true
}

// ParamName returns the display name of a parameter code.
func ParamName(code int) string {
	if n, ok := fxParamNames[code]; ok {
		return n
	}
	return fmt.Sprintf("param %d", code)
}
