package syscompress

// uncompressedLenOf returns the uncompressed length of chunkIdx: chunkSize
// for all but the last chunk, and the remainder for the last.
func (ctx *Context) uncompressedLenOf(chunkIdx uint64) uint32 {
	if chunkIdx == ctx.numChunks-1 {
		return uint32(((ctx.uncompressedSize - 1) & uint64(ctx.chunkSize-1)) + 1)
	}
	return ctx.chunkSize
}

// readChunk fills dst (len(dst) == uncompressedLenOf(chunkIdx)) with the
// decompressed bytes of chunk chunkIdx.
func (ctx *Context) readChunk(chunkIdx uint64, dst []byte) error {
	off, stored, err := ctx.locate(chunkIdx)
	if err != nil {
		return err
	}

	uncomp := ctx.uncompressedLenOf(chunkIdx)

	if stored == 0 || stored > uncomp {
		return &DecodeError{Kind: DecodeInvalid, ChunkIndex: chunkIdx}
	}

	if stored == uncomp {
		// Chunk did not compress smaller than its original size, so it
		// is stored verbatim; read it directly into the destination.
		n, rerr := ctx.stream.ReadAt(dst[:stored], int64(off))
		if uint32(n) != stored {
			if rerr != nil {
				return &IOError{Op: "reading stored chunk", Err: rerr}
			}
			return &IOError{Op: "short read of stored chunk"}
		}
		return nil
	}

	if uint32(len(ctx.tempBuffer)) < stored {
		ctx.tempBuffer = make([]byte, stored)
	}
	n, rerr := ctx.stream.ReadAt(ctx.tempBuffer[:stored], int64(off))
	if uint32(n) != stored {
		if rerr != nil {
			return &IOError{Op: "reading compressed chunk", Err: rerr}
		}
		return &IOError{Op: "short read of compressed chunk"}
	}

	if err := ctx.codec.Decompress(ctx.tempBuffer[:stored], dst[:uncomp]); err != nil {
		return &DecodeError{Kind: DecodeCodecFailed, ChunkIndex: chunkIdx, Err: err}
	}
	return nil
}

// chunkBytes returns the uncompressed bytes of chunkIdx, serving them from
// the single-entry chunk cache when possible.
//
// The cached index is invalidated before attempting a (re)read so that a
// codec or I/O failure never leaves cachedChunkIdx pointing at a buffer
// that does not actually hold that chunk's data.
func (ctx *Context) chunkBytes(chunkIdx uint64) ([]byte, error) {
	if ctx.cachedChunkIdx == chunkIdx {
		return ctx.cachedChunk[:ctx.uncompressedLenOf(chunkIdx)], nil
	}
	ctx.cachedChunkIdx = invalidChunkIdx
	uncomp := ctx.uncompressedLenOf(chunkIdx)
	if uint32(len(ctx.cachedChunk)) < uncomp {
		ctx.cachedChunk = make([]byte, uncomp)
	}
	if err := ctx.readChunk(chunkIdx, ctx.cachedChunk[:uncomp]); err != nil {
		return nil, err
	}
	ctx.cachedChunkIdx = chunkIdx
	return ctx.cachedChunk[:uncomp], nil
}
