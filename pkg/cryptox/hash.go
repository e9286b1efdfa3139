package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// AccountHashLen is the length of the hex-encoded lookup hash.
const AccountHashLen = 64

// AccountHash returns a deterministic, salted one-way digest of an account
// identifier, used as the lookup index for encrypted rows. Equal identifiers
// always hash identically under the same context; the digest is keyed
// (HMAC-SHA256 under the derived hash key) so it cannot be brute-forced from
// the table alone.
func (c *Context) AccountHash(accountID string) string {
	mac := hmac.New(sha256.New, c.hashKey)
	mac.Write([]byte(accountID))
	return hex.EncodeToString(mac.Sum(nil))
}
