package wofbuild

import "encoding/binary"

// compressXpress is a minimal greedy encoder for the plain-LZ77 XPRESS
// variant that internal/xpress decodes. It exists only so this package's
// fixtures can exercise the real decompression path in tests; production
// code never compresses (the format is read-only by design).
func compressXpress(data []byte) []byte {
	var out []byte
	var indicator uint32
	var nbits uint
	var indicatorPos int

	flush := func() {
		if nbits == 0 {
			return
		}
		// Pad any unused low bits with zero (literal flag) and emit.
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], indicator)
		copy(out[indicatorPos:indicatorPos+4], b[:])
	}

	emitIndicatorSlot := func() {
		indicatorPos = len(out)
		out = append(out, 0, 0, 0, 0)
		indicator = 0
		nbits = 0
	}

	setFlag := func(bit uint32) {
		if nbits == 32 {
			flush()
			emitIndicatorSlot()
		}
		indicator |= bit << (31 - nbits)
		nbits++
	}

	emitIndicatorSlot()

	const minMatch = 3
	// lenOff is a 16-bit word split 12/4 between offset-1 and the length
	// nibble, so the match window can't exceed 4096 bytes back.
	const maxWindow = 1 << 12

	i := 0
	for i < len(data) {
		bestLen, bestOff := 0, 0
		lo := i - maxWindow
		if lo < 0 {
			lo = 0
		}
		maxLen := len(data) - i
		// The escape path's 2-byte field replaces length (bestLen-3)
		// wholesale, so bestLen-3 must itself fit in a uint16.
		if maxLen > 3+0xffff {
			maxLen = 3 + 0xffff
		}
		for j := lo; j < i; j++ {
			l := 0
			for l < maxLen && data[j+l] == data[i+l] {
				l++
			}
			if l > bestLen {
				bestLen = l
				bestOff = i - j
			}
		}

		if bestLen >= minMatch {
			setFlag(1)

			length := uint32(bestLen - 3)
			offset := uint32(bestOff - 1)
			lenNibble := length
			var extra []byte
			if lenNibble >= 0xf {
				lenNibble = 0xf
				rem := length - 0xf
				if rem >= 0xff {
					// The single extra byte alone can't reach lengths
					// this long: emit the escape byte 0xff and let the
					// decoder replace length wholesale with the next
					// two bytes, rather than adding to it.
					extra = append(extra, 0xff)
					var lb [2]byte
					binary.LittleEndian.PutUint16(lb[:], uint16(length))
					extra = append(extra, lb[:]...)
				} else {
					extra = append(extra, byte(rem))
				}
			}
			var lo2 [2]byte
			binary.LittleEndian.PutUint16(lo2[:], uint16(offset<<4)|uint16(lenNibble))
			out = append(out, lo2[:]...)
			out = append(out, extra...)

			i += bestLen
		} else {
			setFlag(0)
			out = append(out, data[i])
			i++
		}
	}

	flush()
	return out
}
