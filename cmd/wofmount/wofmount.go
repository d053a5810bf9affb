// Command wofmount exposes one or more dumped system-compressed files as a
// flat read-only FUSE directory, decompressing each file's contents on
// demand through internal/fswof.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ntfs3g/wofread/internal/fswof"
	"github.com/ntfs3g/wofread/internal/ntfsvol"
)

const help = `wofmount [-flags] mountpoint

Mount one or more system-compressed files, given as -file entries of the
form name=reparse-path:stream-path:size, as a read-only directory.

Example:
  % wofmount -file a.txt=a.reparse:a.wof:4096 /mnt/wof
`

type fileFlag []string

func (f *fileFlag) String() string { return strings.Join(*f, ",") }
func (f *fileFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func parseEntry(spec string) (fswof.Entry, error) {
	nameRest := strings.SplitN(spec, "=", 2)
	if len(nameRest) != 2 {
		return fswof.Entry{}, fmt.Errorf("malformed -file %q: want name=reparse:stream:size", spec)
	}
	parts := strings.SplitN(nameRest[1], ":", 3)
	if len(parts) != 3 {
		return fswof.Entry{}, fmt.Errorf("malformed -file %q: want name=reparse:stream:size", spec)
	}
	reparsePath, streamPath, sizeStr := parts[0], parts[1], parts[2]

	var dataSize int64
	if _, err := fmt.Sscanf(sizeStr, "%d", &dataSize); err != nil {
		return fswof.Entry{}, fmt.Errorf("malformed size in -file %q: %w", spec, err)
	}

	reparse, err := ioutil.ReadFile(reparsePath)
	if err != nil {
		return fswof.Entry{}, fmt.Errorf("reading reparse point for %q: %w", spec, err)
	}
	stream, err := os.Open(streamPath)
	if err != nil {
		return fswof.Entry{}, fmt.Errorf("opening stream for %q: %w", spec, err)
	}
	fi, err := stream.Stat()
	if err != nil {
		return fswof.Entry{}, err
	}

	ni := ntfsvol.NewMemInode(reparse, dataSize)
	ni.AddStream(ntfsvol.WofStreamName, stream, fi.Size())

	return fswof.Entry{Name: nameRest[0], Inode: ni}, nil
}

func main() {
	fset := flag.NewFlagSet("wofmount", flag.ExitOnError)
	var files fileFlag
	fset.Var(&files, "file", "name=reparse-path:stream-path:size (repeatable)")
	fset.Usage = func() {
		fmt.Fprintln(os.Stderr, help)
		fset.PrintDefaults()
	}
	fset.Parse(os.Args[1:])

	if fset.NArg() != 1 || len(files) == 0 {
		fset.Usage()
		os.Exit(2)
	}
	mountpoint, err := filepath.Abs(fset.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	var entries []fswof.Entry
	for _, spec := range files {
		e, err := parseEntry(spec)
		if err != nil {
			log.Fatal(err)
		}
		entries = append(entries, e)
	}

	fs, err := fswof.New(entries)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	join, err := fswof.Mount(ctx, fs, mountpoint)
	if err != nil {
		log.Fatalf("mount: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-c
		log.Printf("unmounting %s", mountpoint)
		if err := unix.Unmount(mountpoint, 0); err != nil {
			fmt.Fprintf(os.Stderr, "unmount: %v\n", err)
		}
	}()

	if err := join(ctx); err != nil {
		log.Fatalf("join: %v", err)
	}
}
