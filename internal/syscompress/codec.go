package syscompress

import (
	"github.com/ntfs3g/wofread/internal/lzx"
	"github.com/ntfs3g/wofread/internal/xpress"
)

// decompressor is the common shape of the two codec adapters. Each instance
// is exclusive to the context that allocated it and is never shared across
// open files, so neither implementation needs to be safe for concurrent
// use.
type decompressor interface {
	Decompress(src, dst []byte) error
	Close() error
}

// newDecompressor allocates the codec for format. Dispatch happens once per
// context (in Open), never per chunk, so the inner read loop never pays for
// the interface indirection more than once.
func newDecompressor(format Format) (decompressor, error) {
	if format == FormatLZX {
		d, err := lzx.New()
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := xpress.New()
	if err != nil {
		return nil, err
	}
	return d, nil
}
