// Package sysex holds the byte-level helpers shared by every patch codec:
// sub-byte bit fields, the nibble and 7-bit-clean re-encodings used on the
// wire, and framing of raw System Exclusive streams.
package sysex

// GetBits returns the width-bit field of b that starts at bit shift.
func GetBits(b byte, shift, width uint) int {
	return int(b>>shift) & (1<<width - 1)
}

// SetBits stores v in the width-bit field of b that starts at bit shift and
// returns the updated byte. Bits of v above width are dropped.
func SetBits(b byte, shift, width uint, v int) byte {
	mask := byte(1<<width-1) << shift
	return b&^mask | byte(v<<shift)&mask
}

// NibbleExpand joins pairs of 4-bit nibbles (high nibble first) starting at
// offset into one byte each. An odd trailing nibble becomes the high half of
// a final byte.
func NibbleExpand(data []byte, offset int) []byte {
	if offset < 0 || offset >= len(data) {
		return nil
	}
	src := data[offset:]
	out := make([]byte, 0, (len(src)+1)/2)
	for i := 0; i < len(src); i += 2 {
		b := (src[i] & 0x0F) << 4
		if i+1 < len(src) {
			b |= src[i+1] & 0x0F
		}
		out = append(out, b)
	}
	return out
}

// NibblePack splits every byte into two nibbles, high nibble first.
func NibblePack(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

// SevenBitExpand rebuilds 8-bit bytes from 7-bit-clean data starting at
// offset. Each group of eight septets is the big-endian bit concatenation of
// seven bytes. A trailing group of m septets yields m-1 bytes; its low
// padding bits are discarded.
func SevenBitExpand(data []byte, offset int) []byte {
	if offset < 0 || offset >= len(data) {
		return nil
	}
	src := data[offset:]
	out := make([]byte, 0, len(src)*7/8)
	var acc uint32
	var n uint
	for _, s := range src {
		acc = acc<<7 | uint32(s&0x7F)
		n += 7
		if n >= 8 {
			n -= 8
			out = append(out, byte(acc>>n))
			acc &= 1<<n - 1
		}
	}
	return out
}

// EightToSevenBit is the inverse of SevenBitExpand: every group of seven
// bytes becomes eight septets, and a trailing group of n bytes becomes n+1
// septets padded with zero bits. Every output byte is at most 0x7F.
func EightToSevenBit(data []byte) []byte {
	out := make([]byte, 0, len(data)+(len(data)+6)/7)
	var acc uint32
	var n uint
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		n += 8
		for n >= 7 {
			n -= 7
			out = append(out, byte(acc>>n)&0x7F)
		}
		acc &= 1<<n - 1
	}
	if n > 0 {
		out = append(out, byte(acc<<(7-n))&0x7F)
	}
	return out
}
