package k2000

import (
	"fmt"

	"synthmcp/param"
)

// Pages is the number of function pages per layer, excluding pitch.
const Pages = 4

const pageSize = 16

// Kind selects the field layout of a function page.
type Kind int

const (
	KindNone Kind = iota
	KindAmplitude
	KindFrequency
	KindResonance
	KindWidth
	KindPan
	KindCrossfade
	KindPitch
	KindWrap
	KindSeparation
	KindPulseWidth
	KindLFCoarse
	KindLFFine
	KindDrive
	KindGain
	KindDepth
	KindPhase
	KindShape
	kindCount
)

var kindNames = [kindCount]string{
	"none", "amplitude", "frequency", "resonance", "width", "pan", "crossfade",
	"pitch", "wrap", "separation", "pulse width", "lf coarse", "lf fine",
	"drive", "gain", "depth", "phase", "shape",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Layout gives the offsets of a kind's fields inside its 16-byte page. Zero
// means absent, since byte 0 is the page tag and byte 1 the selector. Wide
// holds the high byte of a 16-bit coarse value.
type Layout struct {
	Coarse   int
	Wide     int
	Fine     int
	KeyTrack int
	VelTrack int
	Source   int
	Depth    int
	Control  int
	MinDepth int
	MaxDepth int
}

var layouts = [kindCount]Layout{
	KindNone:       {},
	KindAmplitude:  {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8, MinDepth: 9, MaxDepth: 10},
	KindFrequency:  {Coarse: 2, Wide: 11, Fine: 3, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8, MinDepth: 9, MaxDepth: 10},
	KindResonance:  {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8, MinDepth: 9, MaxDepth: 10},
	KindWidth:      {Coarse: 2, Fine: 3, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7},
	KindPan:        {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7},
	KindCrossfade:  {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8},
	KindPitch:      {Coarse: 2, Wide: 11, Fine: 3, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8, MinDepth: 9, MaxDepth: 10},
	KindWrap:       {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8},
	KindSeparation: {Coarse: 2, Fine: 3, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7},
	KindPulseWidth: {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8},
	KindLFCoarse:   {Coarse: 2, Wide: 11, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7},
	KindLFFine:     {Fine: 2, Source: 6, Depth: 7},
	KindDrive:      {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, MinDepth: 9, MaxDepth: 10},
	KindGain:       {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7},
	KindDepth:      {Coarse: 2, Source: 6, Depth: 7, Control: 8},
	KindPhase:      {Coarse: 2, Fine: 3, KeyTrack: 4, Source: 6, Depth: 7},
	KindShape:      {Coarse: 2, KeyTrack: 4, VelTrack: 5, Source: 6, Depth: 7, Control: 8, MinDepth: 9, MaxDepth: 10},
}

// LayoutOf returns the page layout of k.
func LayoutOf(k Kind) Layout {
	if k < 0 || k >= kindCount {
		return Layout{}
	}
	return layouts[k]
}

// outputOffset is the routing byte on pages 3 and 4.
const outputOffset = 15

// Role is the slot a function fills in an algorithm.
type Role int

const (
	RoleSingle Role = iota
	RoleDouble
	RoleTriple
	RoleMix
	RoleAmp
	roleCount
)

func (r Role) String() string {
	switch r {
	case RoleSingle:
		return "single"
	case RoleDouble:
		return "double"
	case RoleTriple:
		return "triple"
	case RoleMix:
		return "mix"
	case RoleAmp:
		return "amp"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Blocks is the number of pages a function of role r spans.
func (r Role) Blocks() int {
	switch r {
	case RoleDouble:
		return 2
	case RoleTriple:
		return 3
	}
	return 1
}

// DSP is one entry of the generic DSP function catalogue. Kinds has one
// entry per page the function spans.
type DSP struct {
	Code  int
	Name  string
	Role  Role
	Kinds []Kind
}

var dspCatalogue = []DSP{
	{1, "NONE", RoleSingle, []Kind{KindNone}},
	{2, "LOPASS", RoleSingle, []Kind{KindFrequency}},
	{3, "HIPASS", RoleSingle, []Kind{KindFrequency}},
	{4, "ALPASS", RoleSingle, []Kind{KindFrequency}},
	{5, "GAIN", RoleSingle, []Kind{KindGain}},
	{6, "SHAPER", RoleSingle, []Kind{KindShape}},
	{7, "DIST", RoleSingle, []Kind{KindDrive}},
	{8, "SINE", RoleSingle, []Kind{KindPitch}},
	{9, "SAW", RoleSingle, []Kind{KindPitch}},
	{10, "SQUARE", RoleSingle, []Kind{KindPulseWidth}},
	{11, "LF SIN", RoleSingle, []Kind{KindLFCoarse}},
	{12, "NOISE", RoleSingle, []Kind{KindAmplitude}},
	{13, "PANNER", RoleSingle, []Kind{KindPan}},
	{14, "WRAP", RoleSingle, []Kind{KindWrap}},

	{32, "2POLE LOWPASS", RoleDouble, []Kind{KindFrequency, KindResonance}},
	{33, "2POLE HIGHPASS", RoleDouble, []Kind{KindFrequency, KindResonance}},
	{34, "2POLE ALLPASS", RoleDouble, []Kind{KindFrequency, KindWidth}},
	{35, "BANDPASS FILT", RoleDouble, []Kind{KindFrequency, KindWidth}},
	{36, "NOTCH FILTER", RoleDouble, []Kind{KindFrequency, KindWidth}},
	{37, "LF SIN+", RoleDouble, []Kind{KindLFCoarse, KindLFFine}},
	{38, "SINE+", RoleDouble, []Kind{KindPitch, KindAmplitude}},
	{39, "SW+SHP", RoleDouble, []Kind{KindPitch, KindShape}},

	{48, "PARA MID", RoleTriple, []Kind{KindFrequency, KindWidth, KindAmplitude}},
	{49, "4POLE LOPASS W/SEP", RoleTriple, []Kind{KindFrequency, KindResonance, KindSeparation}},
	{50, "TWIN PEAKS BANDPASS", RoleTriple, []Kind{KindFrequency, KindResonance, KindSeparation}},
	{51, "DOUBLE NOTCH W/SEP", RoleTriple, []Kind{KindFrequency, KindWidth, KindSeparation}},
	{52, "LF PHASER", RoleTriple, []Kind{KindLFCoarse, KindLFFine, KindPhase}},

	{64, "XFADE", RoleMix, []Kind{KindCrossfade}},
	{65, "AMP MOD", RoleMix, []Kind{KindDepth}},
	{66, "XGAIN", RoleMix, []Kind{KindGain}},
	{67, "SYNC M", RoleMix, []Kind{KindPhase}},
	{68, "+WRAP", RoleMix, []Kind{KindWrap}},

	{80, "AMP", RoleAmp, []Kind{KindAmplitude}},
	{81, "BAL AMP", RoleAmp, []Kind{KindPan}},
	{82, "AMP MOD", RoleAmp, []Kind{KindDepth}},
	{83, "DRIVE AMP", RoleAmp, []Kind{KindDrive}},
}

var (
	dspByCode = make(map[int]*DSP)
	roleCodes [roleCount][]int
	// selectors maps a generic code to its index in the role's code list.
	selectors [roleCount]map[int]int
)

// DSPFor returns the catalogue entry of a generic code.
func DSPFor(code int) (*DSP, bool) {
	d, ok := dspByCode[code]
	return d, ok
}

// Function is a DSP slot of an algorithm bound to a page. Multi-block
// functions also cover the Blocks-1 pages after Page.
type Function struct {
	Role   Role
	Page   int
	Blocks int
}

// Codes lists the generic DSP codes legal for f, in selector order.
func (f Function) Codes() []int {
	return roleCodes[f.Role]
}

// DecodeSelector returns the selector index of an on-wire generic code.
func DecodeSelector(f Function, code int) (int, bool) {
	i, ok := selectors[f.Role][code]
	return i, ok
}

// EncodeSelector returns the generic code of a selector index.
func EncodeSelector(f Function, index int) (int, bool) {
	codes := roleCodes[f.Role]
	if index < 0 || index >= len(codes) {
		return 0, false
	}
	return codes[index], true
}

// Algorithm is a routing of DSP functions over the four pages.
type Algorithm struct {
	Number    int
	Functions []Function
	Used      [Pages]bool
}

// Function returns the function bound to page (1..4). Pages an algorithm
// leaves unused and the continuation pages of a multi-block function have
// none.
func (a *Algorithm) Function(page int) (Function, bool) {
	if page < 1 || page > Pages || !a.Used[page-1] {
		return Function{}, false
	}
	for _, f := range a.Functions {
		if f.Page == page {
			return f, true
		}
	}
	return Function{}, false
}

// Algorithms 1..31. Per page: S single, D double, T triple, M mix, A amp,
// "-" continuation of the block to its left, "." unused.
var algorithmLayouts = [...]string{
	"T--A", "D-SA", "SD-A", "SSSA", "D-MA", "MD-A", "SSMA", "SMSA",
	"MSSA", "SMMA", "MSMA", "MMSA", "MMMA", "D-.A", ".D-A", "SS.A",
	"S.SA", ".SSA", "SM.A", "MS.A", "S.MA", "M.SA", ".SMA", ".MSA",
	"S..A", ".S.A", "..SA", "M..A", ".M.A", "..MA", "...A",
}

// AlgorithmCount is the number of algorithms.
const AlgorithmCount = len(algorithmLayouts)

var algorithms [AlgorithmCount]*Algorithm

// LookupAlgorithm returns algorithm n (1..31).
func LookupAlgorithm(n int) (*Algorithm, bool) {
	if n < 1 || n > AlgorithmCount {
		return nil, false
	}
	return algorithms[n-1], true
}

func parseAlgorithm(n int, layout string) *Algorithm {
	if len(layout) != Pages || layout[Pages-1] != 'A' {
		panic(fmt.Sprintf("algorithm %d: bad layout %q", n, layout))
	}
	a := &Algorithm{Number: n}
	cover := 0
	for i := 0; i < Pages; i++ {
		if cover > 0 {
			if layout[i] != '-' {
				panic(fmt.Sprintf("algorithm %d: block before page %d is cut short", n, i+1))
			}
			cover--
			continue
		}
		var role Role
		switch layout[i] {
		case 'S':
			role = RoleSingle
		case 'D':
			role = RoleDouble
		case 'T':
			role = RoleTriple
		case 'M':
			role = RoleMix
		case 'A':
			role = RoleAmp
		case '.':
			continue
		default:
			panic(fmt.Sprintf("algorithm %d: bad layout %q", n, layout))
		}
		f := Function{Role: role, Page: i + 1, Blocks: role.Blocks()}
		a.Functions = append(a.Functions, f)
		a.Used[i] = true
		cover = f.Blocks - 1
	}
	return a
}

// pageTables caches the table of every kind on every page.
var pageTables [kindCount][Pages]*param.Table

func buildPageTable(k Kind, page int) *param.Table {
	l := layouts[k]
	prefix := fmt.Sprintf("l%%df%d", page)
	var slots []param.Slot
	add := func(off int, f param.Field) {
		if off != 0 {
			slots = append(slots, param.At(off, f))
		}
	}
	coarseMax := 0xFF
	if l.Wide != 0 {
		coarseMax = 0xFFFF
	}
	add(l.Coarse, param.Byte(prefix+"coarse", coarseMax))
	add(l.Wide, param.Byte(prefix+"coarse", coarseMax).High(8))
	add(l.Fine, param.Byte(prefix+"fine", 0xFF))
	add(l.KeyTrack, param.Byte(prefix+"keytrack", 0xFF))
	add(l.VelTrack, param.Byte(prefix+"veltrack", 0xFF))
	add(l.Source, param.Byte(prefix+"src", 0xFF))
	add(l.Depth, param.Byte(prefix+"depth", 0xFF))
	add(l.Control, param.Byte(prefix+"ctl", 0xFF))
	add(l.MinDepth, param.Byte(prefix+"mindepth", 0xFF))
	add(l.MaxDepth, param.Byte(prefix+"maxdepth", 0xFF))
	if page >= 3 {
		add(outputOffset, param.Byte(prefix+"out", 3))
	}
	return param.MustTable(pageSize, slots...)
}

func init() {
	for i := range dspCatalogue {
		d := &dspCatalogue[i]
		if len(d.Kinds) != d.Role.Blocks() {
			panic(fmt.Sprintf("dsp %d: %d kinds for a %s function", d.Code, len(d.Kinds), d.Role))
		}
		dspByCode[d.Code] = d
		roleCodes[d.Role] = append(roleCodes[d.Role], d.Code)
	}
	for r := range selectors {
		selectors[r] = make(map[int]int, len(roleCodes[r]))
		for i, code := range roleCodes[r] {
			selectors[r][code] = i
		}
	}
	for i, layout := range algorithmLayouts {
		algorithms[i] = parseAlgorithm(i+1, layout)
	}
	for k := Kind(0); k < kindCount; k++ {
		for p := 1; p <= Pages; p++ {
			pageTables[k][p-1] = buildPageTable(k, p)
		}
	}
}
