// Command wofcat decompresses a system-compressed file's contents to
// standard output, given its reparse point and WofCompressedData stream
// dumped to plain files.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/syscompress"
)

const help = `wofcat [-flags]

Decompress a system-compressed file to standard output.

Example:
  % wofcat -reparse reparse.bin -stream wofdata.bin -size 1048576 > out.bin
`

const readChunk = 1 << 20

func logic(w io.Writer, reparsePath, streamPath string, dataSize, offset, length int64) error {
	reparse, err := ioutil.ReadFile(reparsePath)
	if err != nil {
		return fmt.Errorf("reading reparse point: %w", err)
	}
	stream, err := os.Open(streamPath)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()
	fi, err := stream.Stat()
	if err != nil {
		return err
	}

	ni := ntfsvol.NewMemInode(reparse, dataSize)
	ni.AddStream(ntfsvol.WofStreamName, stream, fi.Size())

	ctx, err := syscompress.Open(ni, nil)
	if err != nil {
		return fmt.Errorf("opening system-compression context: %w", err)
	}
	defer ctx.Close()

	if length < 0 {
		length = ctx.UncompressedSize() - offset
	}

	buf := make([]byte, readChunk)
	pos := offset
	remaining := length
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := ctx.Read(pos, buf[:want])
		if err != nil {
			return fmt.Errorf("reading at offset %d: %w", pos, err)
		}
		if n == 0 {
			break // end of file reached before length was satisfied
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		pos += int64(n)
		remaining -= int64(n)
	}
	return nil
}

func main() {
	fset := flag.NewFlagSet("wofcat", flag.ExitOnError)
	reparsePath := fset.String("reparse", "", "path to a dumped reparse-point blob")
	streamPath := fset.String("stream", "", "path to a dumped WofCompressedData stream")
	dataSize := fset.Int64("size", -1, "uncompressed file size, from stat(2) of the original file")
	offset := fset.Int64("offset", 0, "uncompressed byte offset to start reading at")
	length := fset.Int64("length", -1, "number of uncompressed bytes to read (-1 means to end of file)")
	fset.Usage = func() {
		fmt.Fprintln(os.Stderr, help)
		fset.PrintDefaults()
	}
	fset.Parse(os.Args[1:])

	if *reparsePath == "" || *streamPath == "" || *dataSize < 0 {
		fset.Usage()
		os.Exit(2)
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "wofcat: refusing to write decompressed binary data to a terminal; redirect stdout")
		os.Exit(1)
	}

	if err := logic(os.Stdout, *reparsePath, *streamPath, *dataSize, *offset, *length); err != nil {
		log.Fatal(err)
	}
}
