package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeviceFingerprint is a weak correlation key, not an identity proof.
func DeviceFingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:])
}
