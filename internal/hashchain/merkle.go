package hashchain

import "encoding/hex"

// MerkleRoot computes a binary Merkle root from a slice of hex hashes using a
// balanced pairwise reduction. Odd counts duplicate the last hash, the
// standard tie-break. Returns "" for an empty set and for non-hex input.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	level := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		b, err := hex.DecodeString(h)
		if err != nil {
			return ""
		}
		level = append(level, b)
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}
