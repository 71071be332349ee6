// Package keyutil derives content-addressed storage keys from canonical
// record bytes.
//
// A key is a CIDv1 ("raw" codec) over a truncated BLAKE3 multihash.
// Derivation is a pure function: identical canonical bytes always yield
// the identical key, which is what makes reference-token writes
// idempotent and deduplicated. The digest length is configurable so the
// binary key representation can be sized to the transport ceiling.
package keyutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DefaultSize is the default digest length in bytes. 16 bytes keeps a
// reference token around 21 bytes total while leaving collision
// probability negligible for any realistic key population.
const DefaultSize = 16

// MinSize guards against digest lengths short enough to make
// collisions a practical concern.
const MinSize = 8

// Derive computes the storage key for canonical bytes using a BLAKE3
// digest truncated to size bytes. size <= 0 selects DefaultSize.
func Derive(data []byte, size int) (cid.Cid, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size < MinSize {
		return cid.Undef, fmt.Errorf("keyutil: digest size %d below minimum %d", size, MinSize)
	}
	sum, err := multihash.Sum(data, multihash.BLAKE3, size)
	if err != nil {
		return cid.Undef, fmt.Errorf("keyutil: derive: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse reconstructs a key from its binary form (the reference-token
// payload).
func Parse(b []byte) (cid.Cid, error) {
	id, err := cid.Cast(b)
	if err != nil {
		return cid.Undef, fmt.Errorf("keyutil: parse: %w", err)
	}
	if !id.Defined() {
		return cid.Undef, fmt.Errorf("keyutil: undefined key")
	}
	return id, nil
}

// EncodedSize returns the binary length of a key derived with the given
// digest size: the CIDv1 prefix (version + codec), the multihash header
// (code + length), and the digest itself. BLAKE3's multihash code
// (0x1e) and the raw codec both fit in single-byte varints.
func EncodedSize(size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	return 2 + 2 + size
}
