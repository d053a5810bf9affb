package syscompress

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/wofbuild"
)

func TestProbeRejectsNonWOFFile(t *testing.T) {
	ni := ntfsvol.NewMemInode(nil, 0)
	if _, err := Probe(ni, nil); err != ErrNotSystemCompressed {
		t.Fatalf("Probe error = %v, want ErrNotSystemCompressed", err)
	}
}

func TestProbeRejectsTruncatedReparsePoint(t *testing.T) {
	ni := ntfsvol.NewMemInode([]byte{1, 2, 3}, 0)
	if _, err := Probe(ni, nil); err != ErrNotSystemCompressed {
		t.Fatalf("Probe error = %v, want ErrNotSystemCompressed", err)
	}
}

func TestOpenTinySingleChunkXPRESS4K(t *testing.T) {
	want := []byte("a tiny file, well under one 4K chunk")
	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: want, Mode: wofbuild.ForceStored}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	if got := ctx.Format(); got != FormatXPRESS4K {
		t.Errorf("Format() = %v, want FormatXPRESS4K", got)
	}
	if got := ctx.NumChunks(); got != 1 {
		t.Errorf("NumChunks() = %d, want 1", got)
	}
	if got := ctx.UncompressedSize(); got != int64(len(want)) {
		t.Errorf("UncompressedSize() = %d, want %d", got, len(want))
	}

	got := make([]byte, len(want))
	n, err := ctx.Read(0, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(want) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(want))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Read content mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenMultiChunkXPRESS8KRoundTrip(t *testing.T) {
	chunkSize := 8192
	// Highly repetitive content so the greedy encoder actually shrinks
	// it, exercising the real codec path rather than verbatim storage.
	pattern := bytes.Repeat([]byte("0123456789abcdef"), chunkSize/16)
	last := bytes.Repeat([]byte("tail-chunk-data-"), 37) // < chunkSize

	f := wofbuild.File{
		Format: FormatXPRESS8K,
		Chunks: []wofbuild.Chunk{
			{Data: pattern, Mode: wofbuild.AutoCompress},
			{Data: pattern, Mode: wofbuild.AutoCompress},
			{Data: last, Mode: wofbuild.AutoCompress},
		},
	}
	ni, err := wofbuild.Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	want := append(append(append([]byte{}, pattern...), pattern...), last...)
	if got := ctx.UncompressedSize(); got != int64(len(want)) {
		t.Fatalf("UncompressedSize() = %d, want %d", got, len(want))
	}

	got := make([]byte, len(want))
	n, err := ctx.Read(0, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(want) {
		t.Fatalf("Read returned %d, want %d", n, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content differs from input")
	}
}

func TestReadArbitraryOffsetSpansChunkBoundary(t *testing.T) {
	chunkSize := 4096
	c0 := bytes.Repeat([]byte("A"), chunkSize)
	c1 := bytes.Repeat([]byte("B"), chunkSize)
	c2 := bytes.Repeat([]byte("C"), 100)

	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{
			{Data: c0, Mode: wofbuild.ForceStored},
			{Data: c1, Mode: wofbuild.ForceStored},
			{Data: c2, Mode: wofbuild.ForceStored},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	// Straddle the boundary between chunk 0 and chunk 1.
	buf := make([]byte, 10)
	n, err := ctx.Read(int64(chunkSize-5), buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := append(bytes.Repeat([]byte("A"), 5), bytes.Repeat([]byte("B"), 5)...)
	if n != len(buf) || !bytes.Equal(buf, want) {
		t.Fatalf("Read = %q, want %q", buf[:n], want)
	}

	// Read entirely within the final short chunk.
	buf2 := make([]byte, 20)
	n2, err := ctx.Read(int64(2*chunkSize+10), buf2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n2 != 20 || !bytes.Equal(buf2, bytes.Repeat([]byte("C"), 20)) {
		t.Fatalf("Read = %q, n=%d", buf2[:n2], n2)
	}
}

func TestReadPastEndOfFileReturnsZero(t *testing.T) {
	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: []byte("hello"), Mode: wofbuild.ForceStored}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	buf := make([]byte, 10)
	n, err := ctx.Read(5, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF = (%d, %v), want (0, nil)", n, err)
	}
	n, err = ctx.Read(1000, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read past EOF = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReadClampsToRemainingBytes(t *testing.T) {
	data := []byte("0123456789")
	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: data, Mode: wofbuild.ForceStored}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	buf := make([]byte, 100)
	n, err := ctx.Read(7, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(buf[:n]) != "789" {
		t.Fatalf("Read = %q (n=%d), want %q (n=3)", buf[:n], n, "789")
	}
}

func TestReadNegativePositionIsError(t *testing.T) {
	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: []byte("x"), Mode: wofbuild.ForceStored}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	n, err := ctx.Read(-1, make([]byte, 1))
	if n != -1 || err == nil {
		t.Fatalf("Read(-1, ...) = (%d, %v), want (-1, non-nil)", n, err)
	}
}

func TestLZXStoredChunksDispatchThroughCacheWindow(t *testing.T) {
	chunkSize := 32768
	chunks := make([]wofbuild.Chunk, 5)
	want := make([][]byte, 5)
	for i := range chunks {
		data := bytes.Repeat([]byte{byte('a' + i)}, chunkSize)
		want[i] = data
		chunks[i] = wofbuild.Chunk{Data: data, Mode: wofbuild.ForceStored}
	}

	ni, err := wofbuild.Build(wofbuild.File{Format: FormatLZX, Chunks: chunks})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// A cache window smaller than the chunk count forces at least one
	// refill, exercising the bounded offset cache's window-slide path.
	ctx, err := openWithWindow(ni, nil, 2)
	if err != nil {
		t.Fatalf("openWithWindow: %v", err)
	}
	defer ctx.Close()

	for i, w := range want {
		got := make([]byte, len(w))
		n, err := ctx.Read(int64(i*chunkSize), got)
		if err != nil {
			t.Fatalf("Read chunk %d: %v", i, err)
		}
		if n != len(w) || !bytes.Equal(got, w) {
			t.Fatalf("Read chunk %d mismatch", i)
		}
	}

	// Re-read an earlier chunk after the window has slid forward.
	got := make([]byte, len(want[0]))
	if _, err := ctx.Read(0, got); err != nil {
		t.Fatalf("re-read chunk 0: %v", err)
	}
	if !bytes.Equal(got, want[0]) {
		t.Fatalf("re-read chunk 0 mismatch after window slide")
	}
}

func TestReadReusesSingleChunkCache(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 4096)
	ni, err := wofbuild.Build(wofbuild.File{
		Format: FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: data, Mode: wofbuild.ForceStored}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	buf := make([]byte, 16)
	if _, err := ctx.Read(0, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ctx.cachedChunkIdx != 0 {
		t.Fatalf("cachedChunkIdx = %d, want 0", ctx.cachedChunkIdx)
	}
	// A second read of the same chunk must hit the cache rather than
	// re-decode; corrupt the backing stream's underlying bytes are not
	// observable here, so this just asserts the cache index is stable.
	if _, err := ctx.Read(8, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ctx.cachedChunkIdx != 0 {
		t.Fatalf("cachedChunkIdx = %d after second read, want 0", ctx.cachedChunkIdx)
	}
}

func TestCorruptChunkTableShortStreamIsIOError(t *testing.T) {
	// A reparse point that claims a large uncompressed size backed by a
	// stream far too short to hold that many chunks' offset table.
	reparse := make([]byte, 24)
	reparse[0] = 0x17
	reparse[1] = 0x00
	reparse[2] = 0x00
	reparse[3] = 0xC0
	reparse[8] = 1
	reparse[12] = 2
	reparse[16] = 1
	// format = FormatXPRESS4K (0), left zero

	ni := ntfsvol.NewMemInode(reparse, 1<<20) // claims 1MiB, many chunks
	ni.AddStream(ntfsvol.WofStreamName, bytes.NewReader([]byte{0, 0}), 2)

	ctx, err := Open(ni, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	buf := make([]byte, 16)
	n, err := ctx.Read(0, buf)
	if n != -1 || err == nil {
		t.Fatalf("Read = (%d, %v), want (-1, non-nil IOError)", n, err)
	}
	if _, ok := err.(*IOError); !ok {
		t.Fatalf("Read error type = %T, want *IOError", err)
	}
}
