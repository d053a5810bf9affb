package lzx_test

import (
	"bytes"
	"testing"

	"github.com/ntfs3g/wofread/internal/lzx"
)

// uncompressedBlockStream hand-assembles a single LZX "uncompressed block"
// covering want, the only block type that carries no Huffman trees: a
// 3-bit block type, a 1-bit full-window flag, a 16-bit block size, a
// realignment skip, a 12-byte LRU-offset table, then the raw bytes.
//
// Bits are packed MSB-first into 16-bit little-endian words, matching the
// bitReader's feed/getBits order.
func uncompressedBlockStream(want []byte) []byte {
	// blockType=3 (011), full=0, blockSize=len(want) as 16 bits: 20 bits
	// total, padded to two 16-bit words with trailing zero bits.
	blockType := uint32(3)
	full := uint32(0)
	size := uint32(len(want))

	var bits []byte
	pushBits := func(v uint32, n int) {
		for i := n - 1; i >= 0; i-- {
			bits = append(bits, byte((v>>uint(i))&1))
		}
	}
	pushBits(blockType, 3)
	pushBits(full, 1)
	pushBits(size, 16)
	for len(bits)%16 != 0 {
		bits = append(bits, 0)
	}

	var out []byte
	for i := 0; i < len(bits); i += 16 {
		var word uint16
		for j := 0; j < 16; j++ {
			word = word<<1 | uint16(bits[i+j])
		}
		out = append(out, byte(word), byte(word>>8))
	}

	out = append(out, make([]byte, 12)...) // LRU offset table, unused here
	out = append(out, want...)
	return out
}

func TestDecompressUncompressedBlock(t *testing.T) {
	want := []byte("abcdefgh")
	src := uncompressedBlockStream(want)

	d, err := lzx.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	got := make([]byte, len(want))
	if err := d.Decompress(src, got); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Decompress = %q, want %q", got, want)
	}
}

func TestDecompressUncompressedBlockOddSizeSetsUnaligned(t *testing.T) {
	want := []byte("abcde") // odd length: readBlock marks the stream unaligned; no block follows, so the realign skip is not reached
	src := uncompressedBlockStream(want)

	d, _ := lzx.New()
	defer d.Close()

	got := make([]byte, len(want))
	if err := d.Decompress(src, got); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Decompress = %q, want %q", got, want)
	}
}

func TestDecompressTruncatedHeaderIsCorrupt(t *testing.T) {
	d, _ := lzx.New()
	defer d.Close()

	got := make([]byte, 8)
	err := d.Decompress([]byte{0x00}, got)
	if err != lzx.ErrCorrupt {
		t.Fatalf("Decompress error = %v, want ErrCorrupt", err)
	}
}

func TestDecompressRejectsOversizedChunk(t *testing.T) {
	d, _ := lzx.New()
	defer d.Close()

	got := make([]byte, lzx.MaxChunkSize+1)
	if err := d.Decompress(nil, got); err == nil {
		t.Fatal("Decompress: want error for a chunk larger than the window")
	}
}
