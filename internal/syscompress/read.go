package syscompress

// Read decompresses up to len(buf) bytes of uncompressed data starting at
// pos into buf.
//
// It returns 0 at end-of-file (pos >= the uncompressed size) and clamps the
// request to what remains in the file. On complete failure — no bytes could
// be delivered at all — it returns (-1, err). If at least one chunk was
// already delivered when a later chunk fails, Read stops and returns the
// partial count with a nil error instead of propagating the failure: a
// caller that wants to know about the failure must retry the read starting
// at pos plus the returned count and observe the same error again.
func (ctx *Context) Read(pos int64, buf []byte) (int, error) {
	if pos < 0 {
		return -1, &IOError{Op: "read", Err: errNegativePos}
	}
	offset := uint64(pos)
	if offset >= ctx.uncompressedSize {
		return 0, nil
	}

	count := uint64(len(buf))
	if remaining := ctx.uncompressedSize - offset; count > remaining {
		count = remaining
	}
	if count == 0 {
		return 0, nil
	}

	chunkIdx := offset >> ctx.chunkOrder
	offInChunk := uint32(offset & uint64(ctx.chunkSize-1))

	var delivered uint64
	var firstErr error
	for delivered < count {
		chunkLen := ctx.uncompressedLenOf(chunkIdx)

		toCopy := count - delivered
		if avail := uint64(chunkLen - offInChunk); toCopy > avail {
			toCopy = avail
		}

		chunk, err := ctx.chunkBytes(chunkIdx)
		if err != nil {
			firstErr = err
			break
		}

		copy(buf[delivered:delivered+toCopy], chunk[offInChunk:uint64(offInChunk)+toCopy])

		delivered += toCopy
		chunkIdx++
		offInChunk = 0
	}

	if delivered == 0 && firstErr != nil {
		return -1, firstErr
	}
	return int(delivered), nil
}

type negativePosError struct{}

func (negativePosError) Error() string { return "negative read position" }

var errNegativePos = negativePosError{}
