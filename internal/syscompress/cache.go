package syscompress

import (
	"encoding/binary"
)

// locate returns the physical offset (within the WofCompressedData stream)
// and stored size of chunk chunkIdx, refilling the bounded offset-cache
// window first if chunkIdx falls outside it.
func (ctx *Context) locate(chunkIdx uint64) (offset uint64, storedSize uint32, err error) {
	if ctx.baseChunkIdx == invalidChunkIdx ||
		chunkIdx < ctx.baseChunkIdx ||
		chunkIdx+1 >= ctx.baseChunkIdx+uint64(ctx.window) {
		if err := ctx.refillOffsetCache(chunkIdx); err != nil {
			return 0, 0, err
		}
	}

	k := chunkIdx - ctx.baseChunkIdx
	offset = ctx.baseChunkOffset + uint64(ctx.offsets[k])
	storedSize = ctx.offsets[k+1] - ctx.offsets[k]
	return offset, storedSize, nil
}

func (ctx *Context) refillOffsetCache(chunkIdx uint64) error {
	startChunk := chunkIdx
	span := uint64(ctx.window - 1)
	if rem := ctx.numChunks - chunkIdx; rem < span {
		span = rem
	}
	endChunk := chunkIdx + span

	entryShift := uint(2)
	if ctx.uncompressedSize > 0xFFFFFFFF {
		entryShift = 3
	}

	numEntriesToRead := endChunk - startChunk
	var firstEntryToRead uint64
	if startChunk == 0 {
		// Chunk 0 has no table entry of its own.
		numEntriesToRead--
		firstEntryToRead = 0
	} else {
		firstEntryToRead = startChunk - 1
	}
	if endChunk != ctx.numChunks {
		// Need the following chunk's start to bound the last cached
		// chunk's stored size.
		numEntriesToRead++
	}

	readOff := firstEntryToRead << entryShift
	readLen := numEntriesToRead << entryShift
	if uint64(len(ctx.tempBuffer)) < readLen {
		ctx.tempBuffer = make([]byte, readLen)
	}

	n, rerr := ctx.stream.ReadAt(ctx.tempBuffer[:readLen], int64(readOff))
	if uint64(n) != readLen {
		ctx.baseChunkIdx = invalidChunkIdx
		if rerr != nil {
			return &IOError{Op: "reading chunk offset table", Err: rerr}
		}
		return &IOError{Op: "short read of chunk offset table"}
	}

	i := uint64(0)
	if startChunk == 0 {
		ctx.offsets[0] = 0
		ctx.baseChunkOffset = 0
		i = 1
	} else {
		ctx.baseChunkOffset = readEntry(ctx.tempBuffer, 0, entryShift)
	}

	for j := uint64(0); j < numEntriesToRead; j++ {
		ctx.offsets[i] = uint32(readEntry(ctx.tempBuffer, j, entryShift) - ctx.baseChunkOffset)
		i++
	}

	// The cached offsets are relative to the end of the chunk table,
	// i.e. the actual physical location within the named stream, since
	// the payload follows the table.
	ctx.baseChunkOffset += (ctx.numChunks - 1) << entryShift

	if endChunk == ctx.numChunks {
		ctx.offsets[i] = uint32(ctx.compressedSize - ctx.baseChunkOffset)
	}

	ctx.baseChunkIdx = startChunk
	return nil
}

func readEntry(buf []byte, idx uint64, entryShift uint) uint64 {
	if entryShift == 3 {
		return binary.LittleEndian.Uint64(buf[idx<<3:])
	}
	return uint64(binary.LittleEndian.Uint32(buf[idx<<2:]))
}
