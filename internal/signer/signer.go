// Package signer computes the transport-level authentication token sent
// with every upload. The algorithm is pluggable without affecting queue
// semantics.
package signer

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Signer computes a checksum over the upload request fields.
type Signer interface {
	Checksum(apiVersion int, apiKey, payload, uploadTime string) string
}

// Murmur3Signer is the default Signer, producing a 128-bit murmur3 digest
// in hex over the concatenated request fields.
type Murmur3Signer struct{}

func (Murmur3Signer) Checksum(apiVersion int, apiKey, payload, uploadTime string) string {
	h1, h2 := murmur3.Sum128([]byte(fmt.Sprintf("%d%s%s%s", apiVersion, apiKey, payload, uploadTime)))
	return fmt.Sprintf("%016x%016x", h1, h2)
}
