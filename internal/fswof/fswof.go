// Package fswof exposes one or more system-compressed files, opened through
// internal/syscompress, as a read-only FUSE file system.
//
// It mirrors the four callbacks NTFS-3G's system-compression plugin hooks
// into the driver (getattr / open / release / read, see plugin.c in the
// upstream sources this module's core is grounded on): GetInodeAttributes,
// OpenFile, ReleaseFileHandle and ReadFile below play the same role against
// jacobsa/fuse's kernel-facing API instead of libfuse's C one.
package fswof

import (
	"context"
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/syscompress"
)

// Entry describes one system-compressed file to expose in the mounted
// directory, by the name it should appear under at the mount root.
type Entry struct {
	Name  string
	Inode ntfsvol.Inode
}

const rootInodeID = fuseops.RootInodeID

// FileSystem is a flat, read-only directory of system-compressed files: the
// mount root lists Entries by name, and reading any of them transparently
// decompresses through a syscompress.Context. It implements
// fuseutil.FileSystem via fuseutil.NotImplementedFileSystem, overriding only
// the handful of operations a read-only, single-level tree needs.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	entries []Entry
	byInode map[fuseops.InodeID]int // index into entries, 1-based inode = index+2
	byName  map[string]fuseops.InodeID

	mu       sync.Mutex
	handles  map[fuseops.HandleID]*syscompress.Context
	nextFh   fuseops.HandleID
	attrOnce map[int]*fileAttr
}

type fileAttr struct {
	size int64
	err  error // non-nil if CompressedFileSize failed at stat time
}

// New builds a FileSystem serving entries at the mount root. Names must be
// unique; a duplicate makes New return an error.
func New(entries []Entry) (*FileSystem, error) {
	fs := &FileSystem{
		entries:  entries,
		byInode:  make(map[fuseops.InodeID]int, len(entries)),
		byName:   make(map[string]fuseops.InodeID, len(entries)),
		handles:  make(map[fuseops.HandleID]*syscompress.Context),
		attrOnce: make(map[int]*fileAttr, len(entries)),
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, xerrors.Errorf("fswof: entry %d has an empty name", i)
		}
		id := fuseops.InodeID(i + 2) // 1 is the root
		if _, dup := fs.byName[e.Name]; dup {
			return nil, xerrors.Errorf("fswof: duplicate entry name %q", e.Name)
		}
		fs.byInode[id] = i
		fs.byName[e.Name] = id
	}
	return fs, nil
}

// Mount mounts fs read-only at mountpoint and returns a join function that
// blocks until the file system is unmounted, analogous in shape to the
// teacher's fuse.Mount wrapper around jacobsa/fuse.
func Mount(ctx context.Context, fs *FileSystem, mountpoint string) (join func(context.Context) error, err error) {
	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:                 "wofread",
		ReadOnly:                true,
		EnableNoOpendirSupport: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}
	var eg errgroup.Group
	eg.Go(func() error { return mfs.Join(ctx) })
	return func(context.Context) error {
		return eg.Wait()
	}, nil
}

func (fs *FileSystem) attrsFor(idx int) *fileAttr {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if a, ok := fs.attrOnce[idx]; ok {
		return a
	}
	a := &fileAttr{}
	// CompressedFileSize both validates the reparse point and makes sure
	// the named stream opens cleanly; any failure here (a malformed
	// reparse point as much as a missing named stream) is remembered so
	// GetInodeAttributes doesn't need to probe on every call, but the
	// externally visible size always comes from the inode's own
	// (uncompressed) data size, not the compressed stream's.
	if _, err := syscompress.CompressedFileSize(fs.entries[idx].Inode, nil); err != nil {
		a.err = err
	}
	a.size = fs.entries[idx].Inode.DataSize()
	fs.attrOnce[idx] = a
	return a
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.IoSize = 65536
	return nil
}

var never = time.Now().Add(365 * 24 * time.Hour)

func rootAttrs(n int) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: uint32(2 + n),
		Mode:  os.ModeDir | 0555,
		Atime: never,
		Mtime: never,
		Ctime: never,
	}
}

func (fs *FileSystem) fileAttrs(idx int) (fuseops.InodeAttributes, error) {
	a := fs.attrsFor(idx)
	if a.err != nil {
		log.Println(a.err)
		if xerrors.Is(a.err, syscompress.ErrNotSystemCompressed) {
			return fuseops.InodeAttributes{}, syscall.EOPNOTSUPP
		}
		return fuseops.InodeAttributes{}, fuse.EIO
	}
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  0444,
		Size:  uint64(a.size),
		Atime: never,
		Mtime: never,
		Ctime: never,
	}, nil
}

func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	//log.Printf("LookUpInode(op=%+v)", op)
	if op.Parent != rootInodeID {
		return fuse.ENOENT
	}
	id, ok := fs.byName[op.Name]
	if !ok {
		return fuse.ENOENT
	}
	attrs, err := fs.fileAttrs(fs.byInode[id])
	if err != nil {
		return err
	}
	op.Entry.Child = id
	op.Entry.Attributes = attrs
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	op.AttributesExpiration = never
	//log.Printf("GetInodeAttributes(op=%#v)", op)
	if op.Inode == rootInodeID {
		op.Attributes = rootAttrs(len(fs.entries))
		return nil
	}
	idx, ok := fs.byInode[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	attrs, err := fs.fileAttrs(idx)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if op.Inode != rootInodeID {
		return fuse.ENOENT
	}
	return nil
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	//log.Printf("ReadDir(inode %d, handle %d, offset %d)", op.Inode, op.Handle, op.Offset) // skip op.Dst, which is large
	if op.Inode != rootInodeID {
		return fuse.ENOENT
	}
	var dirents []fuseutil.Dirent
	for i, e := range fs.entries {
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(i + 2),
			Name:   e.Name,
			Type:   fuseutil.DT_File,
		})
	}
	if op.Offset > fuseops.DirOffset(len(dirents)) {
		return fuse.EIO
	}
	for _, d := range dirents[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// OpenFile opens a read-only decompression context for the requested file,
// rejecting anything but O_RDONLY exactly as the upstream plugin's
// compressed_open does.
func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	//log.Printf("OpenFile(op=%+v)", op)
	idx, ok := fs.byInode[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	// plugin.c's compressed_open rejects anything but O_RDONLY via
	// (fi->flags & O_ACCMODE) != O_RDONLY; same check here.
	if op.OpenFlags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return syscall.EOPNOTSUPP
	}

	sc, err := syscompress.Open(fs.entries[idx].Inode, nil)
	if err != nil {
		log.Println(err)
		return translateOpenError(err)
	}

	fs.mu.Lock()
	fs.nextFh++
	fh := fs.nextFh
	fs.handles[fh] = sc
	fs.mu.Unlock()

	op.Handle = fh
	op.KeepPageCache = true
	return nil
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	//log.Printf("ReadFile(inode %d, handle %d, offset %d)", op.Inode, op.Handle, op.Offset) // skip op.Dst, which is large
	fs.mu.Lock()
	sc, ok := fs.handles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	n, err := sc.Read(op.Offset, op.Dst)
	if n < 0 {
		log.Println(err)
		return translateReadError(err)
	}
	// Partial-success semantics (syscompress.Read's documented contract):
	// bytes were delivered, so FUSE sees a short read rather than an
	// error even if a later chunk would have failed.
	op.BytesRead = n
	return nil
}

func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	sc, ok := fs.handles[op.Handle]
	delete(fs.handles, op.Handle)
	fs.mu.Unlock()
	if ok {
		sc.Close()
	}
	return nil
}

func (fs *FileSystem) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	log.Printf("unmounting, releasing %d open handle(s)", len(fs.handles))
	for fh, sc := range fs.handles {
		sc.Close()
		delete(fs.handles, fh)
	}
}

func translateOpenError(err error) error {
	switch {
	case xerrors.Is(err, syscompress.ErrNotSystemCompressed):
		return syscall.EOPNOTSUPP
	case xerrors.Is(err, syscompress.ErrOutOfMemory):
		return syscall.ENOMEM
	default:
		return fuse.EIO
	}
}

func translateReadError(err error) error {
	if err == nil {
		return nil
	}
	var de *syscompress.DecodeError
	if xerrors.As(err, &de) {
		return syscall.EIO
	}
	return fuse.EIO
}
