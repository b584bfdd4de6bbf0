package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sha256Hex returns the lowercase hex SHA-256 digest of s. Both commitment
// hashes in the fairness scheme use this exact encoding, so verification done
// by a buyer with any standard SHA-256 tool matches byte for byte.
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// PoolCommitmentPayload builds the canonical preimage for a pool commitment:
// the secret seed and the comma-joined prize order, separated by a pipe.
func PoolCommitmentPayload(seed string, prizeOrder []string) string {
	return seed + "|" + strings.Join(prizeOrder, ",")
}
