// Package hashchain provides the content-hashing and chain-linking primitive
// used by both the per-feed event log and the per-subject integrity chain.
// All hashing is deterministic: payloads are canonicalized to RFC 8785 JSON
// before hashing, so identical inputs always produce identical proofs.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the fixed sentinel standing in for the predecessor of the
// first event in a chain. It is distinct from any real SHA-256 output by
// construction (not valid hex of a digest).
const GenesisHash = "genesis:0000000000000000000000000000000000000000000000000000000000000000"

// Canonicalize renders v as RFC 8785 canonical JSON. Payloads that cannot be
// marshaled to JSON (channels, cycles, NaN) are rejected: callers must supply
// a canonical-encodable payload.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return canonical, nil
}

// LinkHash computes the integrity proof of an event: the SHA-256 of its
// canonical serialization, hex-encoded.
func LinkHash(v interface{}) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash links a proof to its predecessor. It is pure and order-sensitive:
// ChainHash(a, b) != ChainHash(b, a) for a != b.
func ChainHash(proof, previousProof string) string {
	h := sha256.New()
	h.Write([]byte(previousProof))
	h.Write([]byte(proof))
	return hex.EncodeToString(h.Sum(nil))
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
