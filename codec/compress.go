package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// maxDecompressed caps inflation of a compressed payload. A token
// payload is at most 63 bytes, so anything that inflates past this is
// not something this library produced.
const maxDecompressed = 64 << 10

// Compress deflates data (raw DEFLATE, best compression). The caller
// decides whether the result is actually worth using; this function
// makes no smaller-than-input guarantee.
//
// Raw DEFLATE is deliberate: zlib and gzip framing cost 6 and 18 bytes
// of overhead, which is real money under a 64-byte ceiling.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("codec: compressor init: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("codec: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates data produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressed+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrMalformed, err)
	}
	if len(out) > maxDecompressed {
		return nil, fmt.Errorf("%w: decompressed payload exceeds %d bytes", ErrMalformed, maxDecompressed)
	}
	return out, nil
}
