package hash

import (
	"github.com/multiformats/go-multihash"
)

// Compute returns the content digest of data: SHA2-256, multihash-encoded,
// base58btc-encoded. The same string serves as operation identifier, version
// identifier, and CAS key.
func Compute(data []byte) string {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// SHA2-256 with default length cannot fail on any input.
		panic(err)
	}
	return mh.B58String()
}

// ComputeString hashes a string payload.
func ComputeString(data string) string {
	return Compute([]byte(data))
}

// Valid reports whether s decodes as a base58 multihash.
func Valid(s string) bool {
	_, err := multihash.FromB58String(s)
	return err == nil
}
