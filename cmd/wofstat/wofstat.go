// Command wofstat reports the system-compression metadata of a WOF file
// provider stream extracted from an NTFS volume: its compression format,
// chunk size, chunk count, and compressed vs. uncompressed size.
//
// It operates on a reparse-point blob and a WofCompressedData stream dumped
// to plain files (e.g. via ntfs-3g's getfattr tooling) plus the file's
// uncompressed size (from a plain stat of the original file), since this
// module does not itself bind to a volume driver.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/ntfs3g/wofread/internal/ntfsvol"
	"github.com/ntfs3g/wofread/internal/syscompress"
)

const help = `wofstat [-flags]

Report system-compression metadata for a dumped reparse point and
WofCompressedData stream.

Example:
  % wofstat -reparse reparse.bin -stream wofdata.bin -size 1048576
`

func logic(reparsePath, streamPath string, dataSize int64) error {
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

	// Probe-only: this is a stat command, not a read path, so it never
	// allocates a decompression Context (no codec, no chunk-offset cache,
	// no chunk-decode buffer).
	format, err := syscompress.Probe(ni, nil)
	if err != nil {
		return fmt.Errorf("probing system-compression header: %w", err)
	}
	compressedSize, err := syscompress.CompressedFileSize(ni, nil)
	if err != nil {
		return fmt.Errorf("reading compressed size: %w", err)
	}
	chunkOrder, _ := format.ChunkOrder() // format already validated by Probe
	chunkSize := uint64(1) << chunkOrder
	numChunks := (uint64(dataSize) + chunkSize - 1) / chunkSize

	fmt.Printf("format:             %s\n", format)
	fmt.Printf("chunk size:         %d\n", chunkSize)
	fmt.Printf("num chunks:         %d\n", numChunks)
	fmt.Printf("uncompressed size:  %d\n", dataSize)
	fmt.Printf("compressed size:    %d\n", compressedSize)
	return nil
}

func main() {
	fset := flag.NewFlagSet("wofstat", flag.ExitOnError)
	reparsePath := fset.String("reparse", "", "path to a dumped reparse-point blob")
	streamPath := fset.String("stream", "", "path to a dumped WofCompressedData stream")
	dataSize := fset.Int64("size", -1, "uncompressed file size, from stat(2) of the original file")
	fset.Usage = func() {
		fmt.Fprintln(os.Stderr, help)
		fset.PrintDefaults()
	}
	fset.Parse(os.Args[1:])

	if *reparsePath == "" || *streamPath == "" || *dataSize < 0 {
		fset.Usage()
		os.Exit(2)
	}

	if err := logic(*reparsePath, *streamPath, *dataSize); err != nil {
		log.Fatal(err)
	}
}
