package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashCredential hashes a session credential before it is used as a store
// key. The raw credential never leaves the process boundary this way, and
// the fixed-length key is faster to look up.
func HashCredential(credential string) string {
	hasher := sha256.New()
	hasher.Write([]byte(credential))
	return hex.EncodeToString(hasher.Sum(nil))
}
