package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex is the content key used for result caching and scan history.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
