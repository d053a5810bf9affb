package syscompress

import (
	"golang.org/x/xerrors"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
)

// defaultWindow is N, the reference number of chunk offsets kept cached at
// once. It is a pure tuning knob: the minimum useful value is 2 (enough to
// compute one chunk's stored size), and any value keeps offsets in 32 bits
// as long as N * max_chunk_size stays under 2^32.
const defaultWindow = 128

// invalidChunkIdx marks an empty offset-cache window or chunk cache.
const invalidChunkIdx = ^uint64(0)

// Context is the open state for reading one system-compressed file. It is
// not safe for concurrent use: all operations on one Context must be
// externally serialized, though distinct Contexts are fully independent.
//
// Context snapshots uncompressed_size, compressed_size and format at Open
// time and never re-queries them; since this package only ever reads
// system-compressed files, this is safe in normal use, but a file mutated
// out from under an open Context (which Windows itself disallows without
// first decompressing it) will not be reflected in subsequent reads.
type Context struct {
	stream ntfsvol.NamedStream
	format Format
	codec  decompressor

	uncompressedSize uint64
	compressedSize   uint64
	chunkOrder       uint32
	chunkSize        uint32
	numChunks        uint64

	window int

	// Bounded chunk-offset cache (spec §3, §4.4).
	baseChunkIdx    uint64
	baseChunkOffset uint64
	offsets         []uint32 // len == window+1

	// Scratch space shared between chunk-table refills and raw chunk
	// reads, sized to the larger of the two uses.
	tempBuffer []byte

	// Single decompressed-chunk cache (spec §4.5).
	cachedChunk    []byte
	cachedChunkIdx uint64
}

// Open validates ni as a system-compressed file and constructs a Context
// for reading it. reparse, if non-nil, is used instead of reading the
// reparse-point attribute.
//
// On any failure from codec allocation onward, everything allocated so far
// is released in reverse order before the error is returned.
func Open(ni ntfsvol.Inode, reparse []byte) (*Context, error) {
	return openWithWindow(ni, reparse, defaultWindow)
}

// openWithWindow is Open with an explicit cache window size, exposed
// unexported so tests can exercise small windows without multi-hundred-KiB
// fixtures.
func openWithWindow(ni ntfsvol.Inode, reparse []byte, window int) (*Context, error) {
	if window < 2 {
		window = 2
	}

	format, err := Probe(ni, reparse)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		format:         format,
		window:         window,
		baseChunkIdx:   invalidChunkIdx,
		cachedChunkIdx: invalidChunkIdx,
	}

	ctx.codec, err = newDecompressor(format)
	if err != nil {
		return nil, xerrors.Errorf("allocating decompressor: %w: %v", ErrOutOfMemory, err)
	}

	ctx.stream, err = ni.OpenNamedStream(ntfsvol.WofStreamName)
	if err != nil {
		ctx.codec.Close()
		return nil, &IOError{Op: "opening " + ntfsvol.WofStreamName, Err: err}
	}

	ctx.uncompressedSize = uint64(ni.DataSize())
	ctx.compressedSize = uint64(ctx.stream.Size())
	ctx.chunkOrder, _ = format.ChunkOrder() // format already validated by Probe
	ctx.chunkSize = uint32(1) << ctx.chunkOrder
	ctx.numChunks = (ctx.uncompressedSize + uint64(ctx.chunkSize) - 1) >> ctx.chunkOrder

	tempSize := uint64(ctx.chunkSize)
	if n := uint64(window+1) * 8; n > tempSize {
		tempSize = n
	}
	ctx.tempBuffer = make([]byte, tempSize)
	ctx.cachedChunk = make([]byte, ctx.chunkSize)
	ctx.offsets = make([]uint32, window+1)

	return ctx, nil
}

// Close releases the context's resources: the decompressed-chunk cache,
// the scratch buffer, the named-stream handle and the codec, in that
// order. It is safe to call on a nil Context.
func (ctx *Context) Close() error {
	if ctx == nil {
		return nil
	}
	ctx.cachedChunk = nil
	ctx.tempBuffer = nil
	var err error
	if ctx.stream != nil {
		err = ctx.stream.Close()
		ctx.stream = nil
	}
	if ctx.codec != nil {
		if cerr := ctx.codec.Close(); err == nil {
			err = cerr
		}
		ctx.codec = nil
	}
	return err
}

// Format returns the file's compression format, as determined at Open.
func (ctx *Context) Format() Format { return ctx.format }

// UncompressedSize returns the uncompressed file size snapshotted at Open.
func (ctx *Context) UncompressedSize() int64 { return int64(ctx.uncompressedSize) }

// CompressedSize returns the WofCompressedData stream size snapshotted at
// Open.
func (ctx *Context) CompressedSize() int64 { return int64(ctx.compressedSize) }

// ChunkSize returns the uncompressed size of all but possibly the last
// chunk.
func (ctx *Context) ChunkSize() uint32 { return ctx.chunkSize }

// NumChunks returns the number of chunks the file is divided into.
func (ctx *Context) NumChunks() uint64 { return ctx.numChunks }
