// Package ntfsvol defines the narrow slice of the NTFS volume layer that
// internal/syscompress needs: reparse-point bytes, the unnamed stream's
// (sparse) data size, and positional reads against a named data stream.
//
// This package does not parse an NTFS volume. A real deployment supplies an
// Inode backed by a userspace NTFS driver (e.g. a cgo binding over
// libntfs-3g); MemInode in this package is a standalone, in-memory
// implementation used by tests and by the wofcat/wofstat/wofmount commands
// to exercise the engine without one.
package ntfsvol

import "io"

// WofStreamName is the name of the named data stream holding the compressed
// payload of a system-compressed file: "WofCompressedData", UTF-16LE
// code units in the real NTFS attribute, compared case-sensitively.
const WofStreamName = "WofCompressedData"

// Inode is the subset of an NTFS inode that format probing and chunk
// decompression require.
type Inode interface {
	// HasReparsePoint reports whether FILE_ATTR_REPARSE_POINT is set.
	HasReparsePoint() bool

	// ReparsePoint reads the AT_REPARSE_POINT unnamed attribute in full.
	ReparsePoint() ([]byte, error)

	// DataSize returns the size of the inode's unnamed data stream. For a
	// system-compressed file this is the uncompressed file size; the
	// stream itself is sparse and consumes no disk space.
	DataSize() int64

	// OpenNamedStream opens a named data stream (e.g. WofStreamName) for
	// positional reads.
	OpenNamedStream(name string) (NamedStream, error)
}

// NamedStream is an open, positionally-readable NTFS data stream.
type NamedStream interface {
	io.ReaderAt
	io.Closer

	// Size returns the attribute's value length.
	Size() int64
}
