// Package syscompress reads NTFS "System Compression" (Compact OS / WOF
// File Provider) files.
//
// Windows 10 introduced System Compression, also called Compact OS, which
// lets rarely-modified files be compressed more heavily than ordinary NTFS
// (LZNT1) compression allows. System-compressed files can only be read, not
// written: on Windows, a write to one is transparently preceded by full
// decompression into an ordinary file.
//
// Rather than building the feature directly into NTFS, it is implemented
// via the Windows Overlay Filesystem (WOF) filter driver. A system-
// compressed file carries a reparse point in
// WOF_FILE_PROVIDER_REPARSE_POINT_V1 format, a sparse all-zero unnamed data
// stream whose size is the uncompressed file size, and a named data stream
// "WofCompressedData" holding the compressed payload.
//
// The compressed stream is a table of little-endian chunk offsets followed
// by the chunks themselves, concatenated in order. Every chunk decompresses
// independently to a size fixed by the file's compression format (except
// the last chunk, which decompresses to whatever remains), so random-access
// reads are possible at chunk granularity without decompressing the whole
// file.
package syscompress
