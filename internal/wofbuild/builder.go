// Package wofbuild assembles synthetic system-compressed files for tests.
//
// Production code in this module never writes a compressed stream — System
// Compression is read-only by design — so this package exists purely to
// give tests a way to construct valid WOF_FILE_PROVIDER reparse points and
// WofCompressedData streams without a real NTFS volume or a call out to
// Windows.
package wofbuild

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/orcaman/writerseeker"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/syscompress"
)

// ChunkMode controls how a Chunk's bytes are stored in the built stream.
type ChunkMode int

const (
	// AutoCompress stores the chunk through the format's encoder if that
	// makes it smaller, falling back to verbatim storage otherwise.
	AutoCompress ChunkMode = iota
	// ForceStored always stores the chunk's bytes verbatim, regardless of
	// whether the encoder could shrink them. Every LZX fixture in this
	// module uses this mode: there is no LZX encoder here, only a
	// decoder, so LZX chunks can only ever be exercised stored.
	ForceStored
)

// Chunk is one uncompressed chunk's worth of input data.
type Chunk struct {
	Data []byte
	Mode ChunkMode
}

// File describes the chunk sequence of a synthetic system-compressed file.
// Every chunk but the last must decompress to exactly the format's chunk
// size; the last may be shorter.
type File struct {
	Format syscompress.Format
	Chunks []Chunk
}

// Build assembles a reparse point and WofCompressedData stream for f and
// returns them wrapped in an *ntfsvol.MemInode, ready to pass to
// syscompress.Open.
func Build(f File) (*ntfsvol.MemInode, error) {
	if len(f.Chunks) == 0 {
		return nil, fmt.Errorf("wofbuild: File has no chunks")
	}
	order, ok := f.Format.ChunkOrder()
	if !ok {
		return nil, fmt.Errorf("wofbuild: unknown format %v", f.Format)
	}
	chunkSize := uint32(1) << order

	var uncompressedSize uint64
	for i, c := range f.Chunks {
		if i != len(f.Chunks)-1 && uint32(len(c.Data)) != chunkSize {
			return nil, fmt.Errorf("wofbuild: chunk %d has length %d, want %d", i, len(c.Data), chunkSize)
		}
		if i == len(f.Chunks)-1 && uint32(len(c.Data)) > chunkSize {
			return nil, fmt.Errorf("wofbuild: last chunk has length %d, want <= %d", len(c.Data), chunkSize)
		}
		uncompressedSize += uint64(len(c.Data))
	}

	stored := make([][]byte, len(f.Chunks))
	for i, c := range f.Chunks {
		stored[i] = encodeChunk(f.Format, c)
	}

	entryShift := uint(2)
	if uncompressedSize > 0xFFFFFFFF {
		entryShift = 3
	}
	numEntries := uint64(len(f.Chunks) - 1)
	tableSize := numEntries << entryShift

	// The table's entries aren't known until every chunk has been
	// encoded and its stored length is final, so the table is written
	// as zeros first and patched in place afterwards by seeking back to
	// the start of the stream.
	ws := &writerseeker.WriterSeeker{}
	if _, err := ws.Write(make([]byte, tableSize)); err != nil {
		return nil, err
	}

	var runningOffset uint64
	entries := make([]uint64, numEntries)
	for i, payload := range stored {
		if _, err := ws.Write(payload); err != nil {
			return nil, err
		}
		runningOffset += uint64(len(payload))
		if i < len(stored)-1 {
			entries[i] = runningOffset
		}
	}

	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	tableBuf := make([]byte, tableSize)
	for i, v := range entries {
		if entryShift == 3 {
			binary.LittleEndian.PutUint64(tableBuf[uint64(i)<<3:], v)
		} else {
			binary.LittleEndian.PutUint32(tableBuf[uint64(i)<<2:], uint32(v))
		}
	}
	if _, err := ws.Write(tableBuf); err != nil {
		return nil, err
	}

	streamSize := int64(tableSize) + int64(runningOffset)
	reparse := buildReparsePoint(f.Format)

	inode := ntfsvol.NewMemInode(reparse, int64(uncompressedSize))
	inode.AddStream(ntfsvol.WofStreamName, ws.BytesReader(), streamSize)
	return inode, nil
}

// encodeChunk returns the bytes that should be written to the compressed
// stream for c, choosing verbatim storage whenever the encoder can't beat
// it (or isn't available, for LZX) or the caller forces it.
func encodeChunk(format syscompress.Format, c Chunk) []byte {
	if c.Mode == ForceStored {
		return c.Data
	}
	if format == syscompress.FormatLZX {
		// No LZX encoder exists in this package; every LZX fixture is
		// stored verbatim regardless of the requested mode.
		return c.Data
	}
	encoded := compressXpress(c.Data)
	if len(encoded) >= len(c.Data) {
		return c.Data
	}
	return encoded
}

// buildReparsePoint returns a minimal WOF_FILE_PROVIDER_REPARSE_POINT_V1
// buffer identifying a file compressed with format. The generic reparse
// header fields (tag aside) aren't interpreted by syscompress.Probe, so
// they're left zeroed.
func buildReparsePoint(format syscompress.Format) []byte {
	const (
		reparseTagWOF        = 0xC0000017
		wofCurrentVersion    = 1
		wofProviderFile      = 2
		fileProviderVersion1 = 1
	)
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], reparseTagWOF)
	// buf[4:6] reparse data length, buf[6:8] reserved: left zero, unused
	// by Probe.
	binary.LittleEndian.PutUint32(buf[8:12], wofCurrentVersion)
	binary.LittleEndian.PutUint32(buf[12:16], wofProviderFile)
	binary.LittleEndian.PutUint32(buf[16:20], fileProviderVersion1)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(format))
	return buf
}
