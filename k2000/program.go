package k2000

import (
	"fmt"

	"synthmcp/codec"
	"synthmcp/param"
)

// Segment tags and sizes of a program body.
const (
	tagPGM  = 0x08
	tagKDFX = 0x68
	tagLYR  = 0x09
	tagCAL  = 0x40
	tagPage = 0x50 // first function page; pages follow in order

	pgmSize   = 16
	kdfxSize  = 36
	lyrSize   = 16
	calSize   = 16
	layerSize = lyrSize + calSize + Pages*pageSize

	// KDFXFormat is the first program format carrying a KDFX segment.
	KDFXFormat = 3

	MaxLayers  = 32
	FXModSlots = 8
)

// NotConnected is the studio name of programs without a studio.
const NotConnected = "not connected"

var pgmTable = param.MustTable(pgmSize,
	param.Skip(0, 1),
	param.At(1, param.Byte("fmt", 127)),
	param.At(2, param.Field{Name: "layers", Width: 8, Min: 1, Max: MaxLayers}),
	param.At(3,
		param.Flag("mono", 0),
		param.Flag("legato", 1),
		param.Flag("portamento", 2),
		param.Flag("attackporta", 3),
	),
	param.At(4, param.Byte("bendup", 0xFF)),
	param.At(5, param.Byte("benddown", 0xFF)),
	param.At(6, param.Byte("portarate", 0xFF)),
	param.At(7, param.Byte("mix", 0xFF)),
	param.At(8, param.Byte("tune", 0xFF)),
	param.Skip(9, 7),
)

// kdfxTable covers the KDFX segment after its tag, reserved byte and
// studio id.
var kdfxTable = param.MustTable(kdfxSize,
	param.Skip(0, 4),
	param.Repeat(4, FXModSlots, 4, 1, param.Byte("fxmod%dbus", Buses)),
	param.Repeat(5, FXModSlots, 4, 1, param.Byte("fxmod%dparam", 0xFF)),
	param.Repeat(6, FXModSlots, 4, 1, param.Byte("fxmod%dsrc", 0xFF)),
	param.Repeat(7, FXModSlots, 4, 1, param.Byte("fxmod%ddepth", 0xFF)),
)

var lyrTable = param.MustTable(lyrSize,
	param.Skip(0, 1),
	param.At(1, param.Byte("l%dlokey", 127)),
	param.At(2, param.Byte("l%dhikey", 127)),
	param.At(3, param.Bits("l%dlovel", 0, 3, 7), param.Bits("l%dhivel", 3, 3, 7)),
	param.At(4, param.Byte("l%dtranspose", 0xFF)),
	param.At(5, param.Byte("l%dtune", 0xFF)),
	param.At(6,
		param.Flag("l%dmute", 0),
		param.Flag("l%dignrel", 1),
		param.Flag("l%dholdsus", 2),
		param.Flag("l%dopaque", 3),
		param.Flag("l%dsustpedal", 4),
	),
	param.At(7, param.Byte("l%ddelay", 0xFF)),
	param.At(8, param.Byte("l%denable", 0xFF)),
	param.At(9, param.Bits("l%dtrigger", 0, 2, 3)),
	param.Skip(10, 6),
)

var calTable = param.MustTable(calSize,
	param.Skip(0, 1),
	param.At(1, param.Field{Name: "l%dalg", Width: 8, Min: 1, Max: AlgorithmCount}),
	param.At(2, param.Byte("l%dkeymap1", 0xFFFF).High(8)),
	param.At(3, param.Byte("l%dkeymap1", 0xFFFF)),
	param.At(4, param.Byte("l%dkeymap2", 0xFFFF).High(8)),
	param.At(5, param.Byte("l%dkeymap2", 0xFFFF)),
	param.At(6, param.Byte("l%dpitchcoarse", 0xFF)),
	param.At(7, param.Byte("l%dpitchfine", 0xFF)),
	param.At(8, param.Byte("l%dpitchkeytrack", 0xFF)),
	param.At(9, param.Byte("l%dpitchveltrack", 0xFF)),
	param.At(10, param.Byte("l%dpitchsrc", 0xFF)),
	param.At(11, param.Byte("l%dpitchdepth", 0xFF)),
	param.At(12, param.Bits("l%dkeymapmode", 0, 2, 3)),
	param.Skip(13, 3),
)

func fxModKey(field string, slot int) string {
	return fmt.Sprintf("fxmod%d%s", slot, field)
}

func fxAlgKey(bus int) string {
	return fmt.Sprintf("fx%dalg", bus)
}

func selectorKey(layer, page int) string {
	return fmt.Sprintf("l%df%dsel", layer, page)
}

// decodeProgram reads a program body into m. FX mod parameters are left
// as raw codes until the studio's presets are known.
func decodeProgram(data []byte, m *param.Model) error {
	if len(data) < pgmSize {
		return codec.Corrupt("pgm", "body of %d bytes is too short", len(data))
	}
	if data[0] != tagPGM {
		return codec.Corrupt("pgm", "tag 0x%02X, want 0x%02X", data[0], tagPGM)
	}
	format, layers := int(data[1]), int(data[2])
	if layers < 1 || layers > MaxLayers {
		return codec.Corrupt("layers", "%d layers, want 1–%d", layers, MaxLayers)
	}
	if err := pgmTable.Decode(data, 0, m); err != nil {
		return err
	}

	off := pgmSize
	if format >= KDFXFormat {
		if len(data) < off+kdfxSize || data[off] != tagKDFX {
			return codec.Corrupt("kdfx", "segment missing in format %d program", format)
		}
		m.Studio = int(data[off+2])<<8 | int(data[off+3])
		if err := kdfxTable.Decode(data, off, m); err != nil {
			return err
		}
		off += kdfxSize
	}

	if want := off + layers*layerSize; len(data) != want {
		return codec.Corrupt("size", "%d layers need %d bytes, body has %d", layers, want, len(data))
	}
	for i := 0; i < layers; i++ {
		if err := decodeLayer(data, off+i*layerSize, i, m); err != nil {
			return err
		}
	}
	return nil
}

func decodeLayer(data []byte, off, layer int, m *param.Model) error {
	if data[off] != tagLYR {
		return codec.Corrupt(fmt.Sprintf("layer %d", layer), "LYR tag 0x%02X", data[off])
	}
	cal := off + lyrSize
	if data[cal] != tagCAL {
		return codec.Corrupt(fmt.Sprintf("layer %d", layer), "CAL tag 0x%02X", data[cal])
	}
	alg, ok := LookupAlgorithm(int(data[cal+1]))
	if !ok {
		return codec.Corrupt(fmt.Sprintf("l%dalg", layer), "algorithm %d outside 1–%d", data[cal+1], AlgorithmCount)
	}
	if err := lyrTable.DecodeIndexed(data, off, layer, m); err != nil {
		return err
	}
	if err := calTable.DecodeIndexed(data, cal, layer, m); err != nil {
		return err
	}

	pages := cal + calSize
	for p := 1; p <= Pages; p++ {
		if tag := data[pageOffset(pages, p)]; tag != byte(tagPage+p-1) {
			return codec.Corrupt(fmt.Sprintf("l%df%d", layer, p), "page tag 0x%02X", tag)
		}
	}
	var kinds [Pages]Kind
	for _, f := range alg.Functions {
		code := int(data[pageOffset(pages, f.Page)+1])
		sel, ok := DecodeSelector(f, code)
		if !ok {
			return codec.Corrupt(selectorKey(layer, f.Page), "code %d is not a %s function", code, f.Role)
		}
		declareSelector(m, layer, f)
		m.Set(selectorKey(layer, f.Page), sel)
		dsp := dspByCode[code]
		for b := 0; b < f.Blocks; b++ {
			kinds[f.Page-1+b] = dsp.Kinds[b]
		}
	}
	for p := 1; p <= Pages; p++ {
		if err := pageTables[kinds[p-1]][p-1].DecodeIndexed(data, pageOffset(pages, p), layer, m); err != nil {
			return err
		}
	}
	return nil
}

func pageOffset(pages, page int) int {
	return pages + (page-1)*pageSize
}

func declareSelector(m *param.Model, layer int, f Function) {
	m.Declare(param.Parameter{Name: selectorKey(layer, f.Page), Max: len(f.Codes()) - 1})
}

// layerKinds returns the page kinds of a layer from the algorithm and
// selectors stored in m.
func layerKinds(m *param.Model, layer int) (*Algorithm, [Pages]Kind, error) {
	var kinds [Pages]Kind
	n := m.Value(fmt.Sprintf("l%dalg", layer))
	alg, ok := LookupAlgorithm(n)
	if !ok {
		return nil, kinds, fmt.Errorf("layer %d: algorithm %d outside 1–%d", layer, n, AlgorithmCount)
	}
	for _, f := range alg.Functions {
		key := selectorKey(layer, f.Page)
		code, ok := EncodeSelector(f, m.Value(key))
		if !ok {
			return nil, kinds, fmt.Errorf("%s: selector %d is not a %s function", key, m.Value(key), f.Role)
		}
		dsp := dspByCode[code]
		for b := 0; b < f.Blocks; b++ {
			kinds[f.Page-1+b] = dsp.Kinds[b]
		}
	}
	return alg, kinds, nil
}

// encodeProgram builds a program body from m. FX mod parameters must
// already hold wire codes.
func encodeProgram(m *param.Model) ([]byte, error) {
	format, layers := m.Value("fmt"), m.Value("layers")
	if layers < 1 || layers > MaxLayers {
		return nil, fmt.Errorf("layers must be in range 1–%d, got %d", MaxLayers, layers)
	}
	size := pgmSize + layers*layerSize
	if format >= KDFXFormat {
		size += kdfxSize
	}
	out := make([]byte, size)
	if err := pgmTable.Encode(m, out, 0); err != nil {
		return nil, err
	}
	out[0] = tagPGM

	off := pgmSize
	if format >= KDFXFormat {
		if err := kdfxTable.Encode(m, out, off); err != nil {
			return nil, err
		}
		out[off] = tagKDFX
		out[off+2], out[off+3] = byte(m.Studio>>8), byte(m.Studio)
		off += kdfxSize
	}
	for i := 0; i < layers; i++ {
		if err := encodeLayer(m, out, off+i*layerSize, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeLayer(m *param.Model, out []byte, off, layer int) error {
	alg, kinds, err := layerKinds(m, layer)
	if err != nil {
		return err
	}
	cal := off + lyrSize
	if err := lyrTable.EncodeIndexed(m, out, off, layer); err != nil {
		return err
	}
	if err := calTable.EncodeIndexed(m, out, cal, layer); err != nil {
		return err
	}
	out[off], out[cal] = tagLYR, tagCAL

	pages := cal + calSize
	for p := 1; p <= Pages; p++ {
		po := pageOffset(pages, p)
		if err := pageTables[kinds[p-1]][p-1].EncodeIndexed(m, out, po, layer); err != nil {
			return err
		}
		out[po] = byte(tagPage + p - 1)
		if f, ok := alg.Function(p); ok {
			code, _ := EncodeSelector(f, m.Value(selectorKey(layer, p)))
			out[po+1] = byte(code)
		}
	}
	return nil
}

// programNames lists the parameters a program of m's shape declares, in
// wire order.
func programNames(m *param.Model) []string {
	names := pgmTable.Names()
	if m.Value("fmt") >= KDFXFormat {
		names = append(names, kdfxTable.Names()...)
		for bus := 1; bus <= Buses; bus++ {
			names = append(names, fxAlgKey(bus))
		}
	}
	layers := m.Value("layers")
	if layers > MaxLayers {
		layers = MaxLayers
	}
	for i := 0; i < layers; i++ {
		names = append(names, lyrTable.NamesIndexed(i)...)
		names = append(names, calTable.NamesIndexed(i)...)
		alg, kinds, err := layerKinds(m, i)
		if err != nil {
			continue
		}
		for p := 1; p <= Pages; p++ {
			if _, ok := alg.Function(p); ok {
				names = append(names, selectorKey(i, p))
			}
			names = append(names, pageTables[kinds[p-1]][p-1].NamesIndexed(i)...)
		}
	}
	return names
}

// declareShape registers the selector and page ranges of every layer for
// the algorithms and selectors m holds. Values out of range are clamped.
func declareShape(m *param.Model) error {
	layers := m.Value("layers")
	if layers < 1 || layers > MaxLayers {
		return fmt.Errorf("layers must be in range 1–%d, got %d", MaxLayers, layers)
	}
	for i := 0; i < layers; i++ {
		alg, kinds, err := layerKinds(m, i)
		if err != nil {
			return err
		}
		for _, f := range alg.Functions {
			declareSelector(m, i, f)
		}
		for p := 1; p <= Pages; p++ {
			pageTables[kinds[p-1]][p-1].DeclareIndexed(m, i)
		}
	}
	return nil
}

// declareProgram registers the ranges of every static part of a program.
func declareProgram(m *param.Model) {
	pgmTable.Declare(m)
	kdfxTable.Declare(m)
	for bus := 1; bus <= Buses; bus++ {
		m.Declare(param.Parameter{Name: fxAlgKey(bus), Max: 0xFFFF})
	}
	for i := 0; i < MaxLayers; i++ {
		lyrTable.DeclareIndexed(m, i)
		calTable.DeclareIndexed(m, i)
	}
}
