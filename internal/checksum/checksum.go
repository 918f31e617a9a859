// Package checksum computes the content digests used for snapshot
// integrity and inbox deduplication.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// JSON returns the digest of v's compact JSON encoding. Map keys are
// sorted by encoding/json, so equal values always hash the same.
func JSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("checksum: encode: %w", err)
	}
	return Sum(data), nil
}

// Verify reports whether want matches the digest of v.
func Verify(v any, want string) (bool, error) {
	got, err := JSON(v)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
