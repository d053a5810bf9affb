// Package lzx implements a decompressor for the WIM-derived variant of LZX
// used by the system-compression (Compact OS) LZX format.
//
// System-compression LZX chunks are at most one 32768-byte window's worth of
// data and are independently decompressable (no history shared between
// chunks), so a Decompressor resets its window and Huffman trees at the
// start of every Decompress call rather than persisting state across a
// whole file the way a solid-archive LZX reader would.
//
// Adapted from the block-decoding core of go-winio's wim/lzx package (the
// bit reader, canonical-Huffman table builder, and block/tree decoding are
// structurally the same); reshaped here into a one-shot
// Decompress(src, dst) call instead of a streaming io.Reader, and with the
// WIM-specific 0xe8 call-address translation removed since system
// compression does not apply it.
package lzx

import (
	"encoding/binary"
	"errors"
)

const (
	maincodecount = 496
	maincodesplit = 256
	lencodecount  = 249

	// MaxChunkSize is the largest uncompressed chunk this decompressor
	// can produce: the LZX system-compression format always uses a
	// 32768-byte window, equal to the chunk size for compression format
	// LZX (chunk_order 15).
	MaxChunkSize = 32768
	windowSize   = MaxChunkSize

	maxTreePathLen = 16

	verbatimBlock      = 1
	alignedOffsetBlock = 2
	uncompressedBlock  = 3
)

var footerBits = [...]byte{
	0, 0, 0, 0, 1, 1, 2, 2,
	3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10,
	11, 11, 12, 12, 13, 13, 14,
}

var basePosition = [...]uint16{
	0, 1, 2, 3, 4, 6, 8, 12,
	16, 24, 32, 48, 64, 96, 128, 192,
	256, 384, 512, 768, 1024, 1536, 2048, 3072,
	4096, 6144, 8192, 12288, 16384, 24576, 32768,
}

// ErrCorrupt is returned for structurally invalid LZX data.
var ErrCorrupt = errors.New("lzx: corrupt compressed data")

// bitReader pulls 16-bit little-endian words out of a byte slice, matching
// the MS-LZX bitstream packing (two bytes at a time, MSB-first consumption
// within the accumulated 32-bit window).
type bitReader struct {
	data      []byte
	pos       int
	err       error
	unaligned bool
	nbits     byte
	c         uint32
}

func (f *bitReader) readByte() (byte, bool) {
	if f.pos >= len(f.data) {
		return 0, false
	}
	b := f.data[f.pos]
	f.pos++
	return b, true
}

func (f *bitReader) feed() bool {
	if f.err != nil {
		return true
	}
	b0, ok := f.readByte()
	var b1 byte
	if ok {
		b1, ok = f.readByte()
	}
	if !ok {
		return false
	}
	f.c |= (uint32(b1)<<8 | uint32(b0)) << (16 - f.nbits)
	f.nbits += 16
	return true
}

func (f *bitReader) getBits(n byte) uint16 {
	if f.nbits < n {
		if !f.feed() {
			f.err = ErrCorrupt
		}
	}
	c := uint16(f.c >> (32 - n))
	f.c <<= n
	f.nbits -= n
	return c
}

type huffman struct {
	lens    []byte
	table   []uint16
	maxbits byte
}

// buildTable builds a canonical-Huffman decoding table from per-symbol code
// lengths.
func buildTable(codelens []byte) *huffman {
	var count [maxTreePathLen + 1]uint
	var max byte
	for _, cl := range codelens {
		count[cl]++
		if max < cl {
			max = cl
		}
	}
	if max == 0 {
		return &huffman{}
	}

	var first [maxTreePathLen + 1]uint
	code := uint(0)
	for i := byte(1); i <= max; i++ {
		code <<= 1
		first[i] = code
		code += count[i]
	}
	if code != 1<<max {
		return nil
	}

	table := make([]uint16, 1<<max)
	for i, cl := range codelens {
		if cl != 0 {
			code := first[cl]
			extendedCode := code << (max - cl)
			for j := uint(0); j < 1<<(max-cl); j++ {
				table[extendedCode+j] = uint16(i)
			}
			first[cl]++
		}
	}
	return &huffman{lens: codelens, table: table, maxbits: max}
}

func (f *bitReader) getCode(h *huffman) uint16 {
	if h.maxbits == 0 {
		f.err = ErrCorrupt
		return 0
	}
	if f.nbits < maxTreePathLen {
		f.feed()
	}
	c := h.table[f.c>>(32-h.maxbits)]
	n := h.lens[c]
	if f.nbits < n {
		f.err = ErrCorrupt
		return 0
	}
	f.c <<= n
	f.nbits -= n
	return c
}

func mod17(b byte) byte {
	for b >= 17 {
		b -= 17
	}
	return b
}

// Decompressor decompresses independent, at-most-32768-byte LZX chunks. It
// is not safe for concurrent use; the owning context serializes access, per
// the single-threaded-per-context model.
type Decompressor struct {
	r        bitReader
	lru      [3]uint16
	mainlens [maincodecount]byte
	lenlens  [lencodecount]byte
	window   [windowSize]byte
}

// New allocates an LZX decompressor.
func New() (*Decompressor, error) {
	return &Decompressor{}, nil
}

// Close releases the decompressor.
func (d *Decompressor) Close() error { return nil }

func (d *Decompressor) reset(src []byte) {
	d.r = bitReader{data: src}
	d.lru = [3]uint16{1, 1, 1}
	for i := range d.mainlens {
		d.mainlens[i] = 0
	}
	for i := range d.lenlens {
		d.lenlens[i] = 0
	}
}

// Decompress decompresses src into dst, which must be sized exactly to the
// expected uncompressed chunk length (at most MaxChunkSize).
func (d *Decompressor) Decompress(src, dst []byte) error {
	if len(dst) > MaxChunkSize {
		return errors.New("lzx: chunk exceeds 32768-byte window")
	}
	d.reset(src)

	n := 0
	for n < len(dst) {
		k, err := d.readBlock(uint16(n))
		if err != nil {
			return err
		}
		n += k
	}
	copy(dst, d.window[:len(dst)])
	return nil
}

func (d *Decompressor) readBlockHeader() (byte, uint16, error) {
	f := &d.r
	if f.unaligned {
		if _, ok := f.readByte(); !ok {
			return 0, 0, ErrCorrupt
		}
		f.unaligned = false
	}

	blockType := f.getBits(3)
	full := f.getBits(1)
	var blockSize uint16
	if full != 0 {
		blockSize = MaxChunkSize
	} else {
		blockSize = f.getBits(16)
		if blockSize > MaxChunkSize {
			return 0, 0, ErrCorrupt
		}
	}
	if f.err != nil {
		return 0, 0, f.err
	}

	switch byte(blockType) {
	case verbatimBlock, alignedOffsetBlock:
		// Caller reads the Huffman trees next.
	case uncompressedBlock:
		n := f.nbits
		if n == 0 {
			n = 16
		}
		f.getBits(n)
		if f.err != nil {
			return 0, 0, f.err
		}
		var lru [12]byte
		for i := range lru {
			b, ok := f.readByte()
			if !ok {
				return 0, 0, ErrCorrupt
			}
			lru[i] = b
		}
		d.lru[0] = uint16(binary.LittleEndian.Uint32(lru[0:4]))
		d.lru[1] = uint16(binary.LittleEndian.Uint32(lru[4:8]))
		d.lru[2] = uint16(binary.LittleEndian.Uint32(lru[8:12]))
	default:
		return 0, 0, ErrCorrupt
	}

	return byte(blockType), blockSize, nil
}

func (d *Decompressor) readTree(lens []byte) error {
	f := &d.r
	var pretreeLen [20]byte
	for i := range pretreeLen {
		pretreeLen[i] = byte(f.getBits(4))
	}
	if f.err != nil {
		return f.err
	}
	h := buildTable(pretreeLen[:])

	for i := 0; i < len(lens); {
		c := byte(f.getCode(h))
		if f.err != nil {
			return f.err
		}
		switch {
		case c <= 16:
			lens[i] = mod17(lens[i] + 17 - c)
			i++
		case c == 17:
			zeroes := int(f.getBits(4)) + 4
			if i+zeroes > len(lens) {
				return ErrCorrupt
			}
			for j := 0; j < zeroes; j++ {
				lens[i+j] = 0
			}
			i += zeroes
		case c == 18:
			zeroes := int(f.getBits(5)) + 20
			if i+zeroes > len(lens) {
				return ErrCorrupt
			}
			for j := 0; j < zeroes; j++ {
				lens[i+j] = 0
			}
			i += zeroes
		case c == 19:
			same := int(f.getBits(1)) + 4
			if i+same > len(lens) {
				return ErrCorrupt
			}
			c = byte(f.getCode(h))
			if c > 16 {
				return ErrCorrupt
			}
			l := mod17(lens[i] + 17 - c)
			for j := 0; j < same; j++ {
				lens[i+j] = l
			}
			i += same
		default:
			return ErrCorrupt
		}
	}
	return f.err
}

func (d *Decompressor) readTrees(readAligned bool) (main, length, aligned *huffman, err error) {
	f := &d.r
	if readAligned {
		var alignedLen [8]byte
		for i := range alignedLen {
			alignedLen[i] = byte(f.getBits(3))
		}
		aligned = buildTable(alignedLen[:])
		if aligned == nil {
			return nil, nil, nil, ErrCorrupt
		}
	}

	if err := d.readTree(d.mainlens[:maincodesplit]); err != nil {
		return nil, nil, nil, err
	}
	if err := d.readTree(d.mainlens[maincodesplit:]); err != nil {
		return nil, nil, nil, err
	}
	main = buildTable(d.mainlens[:])
	if main == nil {
		return nil, nil, nil, ErrCorrupt
	}

	if err := d.readTree(d.lenlens[:]); err != nil {
		return nil, nil, nil, err
	}
	length = buildTable(d.lenlens[:])
	if length == nil {
		return nil, nil, nil, ErrCorrupt
	}

	return main, length, aligned, f.err
}

func (d *Decompressor) readCompressedBlock(start, end uint16, hmain, hlength, haligned *huffman) (int, error) {
	f := &d.r
	for i := start; i < end; {
		main := f.getCode(hmain)
		if f.err != nil {
			return int(i - start), f.err
		}
		if main < 256 {
			d.window[i] = byte(main)
			i++
			continue
		}

		lenheader := (main - 256) % 8
		slot := (main - 256) / 8

		var matchlen uint16
		if lenheader == 7 {
			matchlen = f.getCode(hlength) + 7
		} else {
			matchlen = lenheader
		}
		matchlen += 2

		var matchoffset uint16
		if slot < 3 {
			matchoffset = d.lru[slot]
			d.lru[slot] = d.lru[0]
			d.lru[0] = matchoffset
		} else {
			offsetbits := footerBits[slot]
			var verbatimbits, alignedbits uint16
			if offsetbits > 0 {
				if haligned != nil && offsetbits >= 3 {
					verbatimbits = f.getBits(offsetbits-3) * 8
					alignedbits = f.getCode(haligned)
				} else {
					verbatimbits = f.getBits(offsetbits)
				}
			}
			matchoffset = basePosition[slot] + verbatimbits + alignedbits - 2
			d.lru[2] = d.lru[1]
			d.lru[1] = d.lru[0]
			d.lru[0] = matchoffset
		}

		if matchoffset > i || matchlen > end-i {
			return int(i - start), ErrCorrupt
		}
		for j := uint16(0); j < matchlen; j++ {
			d.window[i+j] = d.window[i+j-matchoffset]
		}
		i += matchlen
	}
	return int(end - start), nil
}

func (d *Decompressor) readBlock(start uint16) (int, error) {
	blockType, size, err := d.readBlockHeader()
	if err != nil {
		return 0, err
	}

	if blockType == uncompressedBlock {
		if size%2 == 1 {
			d.r.unaligned = true
		}
		for i := uint16(0); i < size; i++ {
			b, ok := d.r.readByte()
			if !ok {
				return 0, ErrCorrupt
			}
			d.window[start+i] = b
		}
		return int(size), nil
	}

	hmain, hlength, haligned, err := d.readTrees(blockType == alignedOffsetBlock)
	if err != nil {
		return 0, err
	}
	return d.readCompressedBlock(start, start+size, hmain, hlength, haligned)
}
