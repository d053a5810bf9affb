package ntfsvol

import (
	"io"

	"golang.org/x/xerrors"
)

// MemInode is an in-memory Inode, backing tests and the standalone wofcat /
// wofstat commands against a single synthetic or pre-extracted file without
// a real NTFS volume mounted underneath.
type MemInode struct {
	reparse    []byte
	hasReparse bool
	dataSize   int64
	streams    map[string]*memStream
}

// NewMemInode creates an inode with the given reparse-point bytes (nil if
// none) and unnamed-stream data size.
func NewMemInode(reparse []byte, dataSize int64) *MemInode {
	return &MemInode{
		reparse:    reparse,
		hasReparse: reparse != nil,
		dataSize:   dataSize,
		streams:    make(map[string]*memStream),
	}
}

// AddStream registers a named data stream backed by r, whose total length
// is size.
func (m *MemInode) AddStream(name string, r io.ReaderAt, size int64) {
	m.streams[name] = &memStream{r: r, size: size}
}

func (m *MemInode) HasReparsePoint() bool { return m.hasReparse }

func (m *MemInode) ReparsePoint() ([]byte, error) {
	if !m.hasReparse {
		return nil, xerrors.New("ntfsvol: inode has no reparse point")
	}
	return m.reparse, nil
}

func (m *MemInode) DataSize() int64 { return m.dataSize }

func (m *MemInode) OpenNamedStream(name string) (NamedStream, error) {
	s, ok := m.streams[name]
	if !ok {
		return nil, xerrors.Errorf("ntfsvol: no such named stream %q", name)
	}
	return s, nil
}

type memStream struct {
	r    io.ReaderAt
	size int64
}

func (s *memStream) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }
func (s *memStream) Size() int64                             { return s.size }
func (s *memStream) Close() error                            { return nil }
