package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives the ledger key for an API key: the hex BLAKE2b-256
// digest. Distinct keys map to distinct callers, so per-key quota semantics
// are unchanged while raw keys stay out of storage and logs.
func Fingerprint(apiKey string) string {
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
