// Package xpress implements a decompressor for the MS-XCA "plain LZ77"
// variant used by the XPRESS4K, XPRESS8K and XPRESS16K system-compression
// formats (no Huffman stage, unlike the XPRESS_HUFF algorithm used
// elsewhere in Windows).
//
// No third-party Go library understands this bitstream, so this is a
// from-scratch implementation of the published MS-XCA algorithm rather than
// an adaptation of example code.
package xpress

import (
	"encoding/binary"
	"errors"
)

// ErrCorrupt is returned when the compressed stream is truncated or
// otherwise structurally invalid.
var ErrCorrupt = errors.New("xpress: corrupt compressed data")

// Decompressor holds no persistent state between calls; it exists so the
// engine can allocate it once per open context and amortize the interface
// dispatch, matching the allocate/decompress/free shape of the other
// supported codec.
type Decompressor struct{}

// New allocates an XPRESS decompressor. It never fails; the return type
// matches lzx.New so the two codecs are interchangeable behind one
// interface.
func New() (*Decompressor, error) {
	return &Decompressor{}, nil
}

// Close releases the decompressor. A no-op for XPRESS, kept for symmetry
// with codecs that do hold resources.
func (d *Decompressor) Close() error { return nil }

// Decompress decompresses src into dst, which must be sized exactly to the
// expected uncompressed length.
func (d *Decompressor) Decompress(src []byte, dst []byte) error {
	ip, op := 0, 0
	var indicator uint32
	var nbits uint

	for op < len(dst) {
		if nbits == 0 {
			if ip+4 > len(src) {
				return ErrCorrupt
			}
			indicator = binary.LittleEndian.Uint32(src[ip:])
			ip += 4
			nbits = 32
		}
		nbits--
		if (indicator>>nbits)&1 == 0 {
			// Literal byte.
			if ip >= len(src) {
				return ErrCorrupt
			}
			dst[op] = src[ip]
			ip++
			op++
			continue
		}

		// Match: 2-byte (offset<<4 | length_nibble), with length
		// possibly extended by one or three more bytes.
		if ip+2 > len(src) {
			return ErrCorrupt
		}
		lenOff := binary.LittleEndian.Uint16(src[ip:])
		ip += 2

		length := uint32(lenOff & 0xf)
		offset := uint32(lenOff>>4) + 1

		if length == 0xf {
			if ip >= len(src) {
				return ErrCorrupt
			}
			length += uint32(src[ip])
			ip++
			if length == 0xf+0xff {
				if ip+2 > len(src) {
					return ErrCorrupt
				}
				length = uint32(binary.LittleEndian.Uint16(src[ip:]))
				ip += 2
			}
		}
		length += 3

		if int(offset) > op || op+int(length) > len(dst) {
			return ErrCorrupt
		}
		srcStart := op - int(offset)
		for i := 0; i < int(length); i++ {
			dst[op+i] = dst[srcStart+i]
		}
		op += int(length)
	}
	return nil
}
