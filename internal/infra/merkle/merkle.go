// Package merkle computes the root hash committed to the ledger for a
// batch issuance. Leaves are the archived document hashes of the batch in
// submission order. Hashing follows the RFC 6962 construction so inclusion
// can later be proven against the stored root.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const HashSize = sha256.Size

var ErrNoLeaves = errors.New("merkle: batch has no leaves")

// LeafHash hashes a single leaf with the 0x00 domain separation prefix.
func LeafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// NodeHash combines two child hashes with the 0x01 domain separation prefix.
func NodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Root computes the tree root over the given leaves. Leaves are raw leaf
// data, not pre-hashed values.
func Root(leaves [][]byte) ([]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	hashes := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = LeafHash(leaf)
	}
	return subtreeRoot(hashes), nil
}

func subtreeRoot(hashes [][]byte) []byte {
	if len(hashes) == 1 {
		return hashes[0]
	}
	k := largestPowerOfTwoBelow(len(hashes))
	left := subtreeRoot(hashes[:k])
	right := subtreeRoot(hashes[k:])
	return NodeHash(left, right)
}

func largestPowerOfTwoBelow(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

// RootHex computes the batch root over hex-encoded document hashes and
// returns it hex-encoded. Each document hash must be a sha-256 digest.
func RootHex(documentHashes []string) (string, error) {
	if len(documentHashes) == 0 {
		return "", ErrNoLeaves
	}
	leaves := make([][]byte, len(documentHashes))
	for i, docHash := range documentHashes {
		raw, err := hex.DecodeString(docHash)
		if err != nil {
			return "", fmt.Errorf("merkle: leaf %d is not valid hex: %w", i, err)
		}
		if len(raw) != HashSize {
			return "", fmt.Errorf("merkle: leaf %d has %d bytes, want %d", i, len(raw), HashSize)
		}
		leaves[i] = raw
	}
	root, err := Root(leaves)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(root), nil
}
