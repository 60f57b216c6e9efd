package config

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// FingerprintCredential returns a short, non-reversible hex digest of
// secret, suitable for logging alongside connection attempts so an
// operator can tell "same password as last time" from "different
// password" without the secret ever appearing in a log line.
func FingerprintCredential(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}
