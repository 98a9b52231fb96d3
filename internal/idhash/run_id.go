// Package idhash computes deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(protocol|chain|from_block|to_block)
// Returns hex-encoded hash (64 characters). Re-running the same window for
// the same protocol always yields the same ID, so duplicate persistence is
// caught by the append-only stores.
func ComputeRunID(protocol, chain string, fromBlock, toBlock uint64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", protocol, chain, fromBlock, toBlock)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
