package syscompress

import (
	"encoding/binary"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
)

// reparseRecordSize is sizeof(WOF_FILE_PROVIDER_REPARSE_POINT_V1): an 8-byte
// NTFS reparse header, an 8-byte WOF_EXTERNAL_INFO, and an 8-byte
// WOF_FILE_PROVIDER_EXTERNAL_INFO_V1.
const reparseRecordSize = 24

const (
	reparseTagWOF        = 0xC0000017
	wofCurrentVersion    = 1
	wofProviderFile      = 2
	fileProviderVersion1 = 1
)

// Probe inspects ni's reparse point (using reparse if non-nil instead of
// reading the attribute) and reports whether the file is system-compressed.
// On success it returns the file's compression format. If the reparse
// point does not match the WOF file-provider signature, it returns
// ErrNotSystemCompressed, distinct from an I/O failure.
func Probe(ni ntfsvol.Inode, reparse []byte) (Format, error) {
	if !ni.HasReparsePoint() {
		return 0, ErrNotSystemCompressed
	}

	if reparse == nil {
		var err error
		reparse, err = ni.ReparsePoint()
		if err != nil {
			return 0, &IOError{Op: "reading reparse point", Err: err}
		}
	}

	if len(reparse) < reparseRecordSize {
		return 0, ErrNotSystemCompressed
	}

	tag := binary.LittleEndian.Uint32(reparse[0:4])
	wofVersion := binary.LittleEndian.Uint32(reparse[8:12])
	wofProvider := binary.LittleEndian.Uint32(reparse[12:16])
	fileVersion := binary.LittleEndian.Uint32(reparse[16:20])
	format := Format(binary.LittleEndian.Uint32(reparse[20:24]))

	if tag != reparseTagWOF ||
		wofVersion != wofCurrentVersion ||
		wofProvider != wofProviderFile ||
		fileVersion != fileProviderVersion1 {
		return 0, ErrNotSystemCompressed
	}
	if _, ok := format.ChunkOrder(); !ok {
		return 0, ErrNotSystemCompressed
	}
	return format, nil
}

// CompressedFileSize returns the size in bytes of ni's "WofCompressedData"
// named stream, after verifying ni is a system-compressed file. It performs
// no decompression-context allocation, so it is cheap enough to call from a
// stat-only code path.
func CompressedFileSize(ni ntfsvol.Inode, reparse []byte) (int64, error) {
	if _, err := Probe(ni, reparse); err != nil {
		return 0, err
	}
	ns, err := ni.OpenNamedStream(ntfsvol.WofStreamName)
	if err != nil {
		return 0, &IOError{Op: "opening " + ntfsvol.WofStreamName, Err: err}
	}
	defer ns.Close()
	return ns.Size(), nil
}
