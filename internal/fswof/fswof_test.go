package fswof_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/ntfs3g/wofread/internal/fswof"
	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/syscompress"
	"github.com/ntfs3g/wofread/internal/wofbuild"
)

func buildEntry(t *testing.T, name string, data []byte) fswof.Entry {
	t.Helper()
	ni, err := wofbuild.Build(wofbuild.File{
		Format: syscompress.FormatXPRESS4K,
		Chunks: []wofbuild.Chunk{{Data: data, Mode: wofbuild.AutoCompress}},
	})
	if err != nil {
		t.Fatalf("wofbuild.Build(%s): %v", name, err)
	}
	return fswof.Entry{Name: name, Inode: ni}
}

func TestMountReadsDecompressedFile(t *testing.T) {
	t.Parallel()

	ctx, canc := context.WithCancel(context.Background())
	defer canc()

	want := bytes.Repeat([]byte("hello from the mounted file\n"), 100) // fits in one XPRESS4K chunk
	entries := []fswof.Entry{
		buildEntry(t, "greeting.txt", want),
	}

	fs, err := fswof.New(entries)
	if err != nil {
		t.Fatalf("fswof.New: %v", err)
	}

	tmpdir, err := ioutil.TempDir("", "wofread-fswof")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	join, err := fswof.Mount(ctx, fs, tmpdir)
	if err != nil {
		t.Fatalf("fswof.Mount(%s): %v", tmpdir, err)
	}
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		if err := join(ctx); err != nil && err != context.Canceled {
			t.Errorf("join: %v", err)
		}
	}()
	defer func() {
		canc()
		<-joined
	}()

	fi, err := os.Stat(tmpdir + "/greeting.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got, want := fi.Size(), int64(len(want)); got != want {
		t.Fatalf("Stat size = %d, want %d", got, want)
	}

	got, err := ioutil.ReadFile(tmpdir + "/greeting.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("decompressed content mismatch (len got=%d want=%d)", len(got), len(want))
	}

	if _, err := os.Stat(tmpdir + "/does-not-exist"); !os.IsNotExist(err) {
		t.Fatalf("Stat(missing) err = %v, want ENOENT", err)
	}
}

func TestOpenForWriteIsRejected(t *testing.T) {
	t.Parallel()

	ctx, canc := context.WithCancel(context.Background())
	defer canc()

	entries := []fswof.Entry{
		buildEntry(t, "readonly.txt", []byte("immutable")),
	}
	fs, err := fswof.New(entries)
	if err != nil {
		t.Fatalf("fswof.New: %v", err)
	}

	tmpdir, err := ioutil.TempDir("", "wofread-fswof")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	join, err := fswof.Mount(ctx, fs, tmpdir)
	if err != nil {
		t.Fatalf("fswof.Mount(%s): %v", tmpdir, err)
	}
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		if err := join(ctx); err != nil && err != context.Canceled {
			t.Errorf("join: %v", err)
		}
	}()
	defer func() {
		canc()
		<-joined
	}()

	if _, err := os.OpenFile(tmpdir+"/readonly.txt", os.O_WRONLY, 0); err == nil {
		t.Fatal("OpenFile(O_WRONLY) succeeded, want an error")
	}
}

func TestDuplicateEntryNameIsRejected(t *testing.T) {
	t.Parallel()

	ni := ntfsvol.NewMemInode(nil, 0)
	_, err := fswof.New([]fswof.Entry{
		{Name: "dup", Inode: ni},
		{Name: "dup", Inode: ni},
	})
	if err == nil {
		t.Fatal("New with duplicate names succeeded, want an error")
	}
}
