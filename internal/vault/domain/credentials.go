package domain

import (
	"regexp"
	"strings"
)

// accountIDPattern is the portal's required login shape: uppercase name, a
// dot, one letter and five digits (e.g. "SILVA.A12345"). Obviously malformed
// identifiers are rejected before a browser session is ever provisioned.
var accountIDPattern = regexp.MustCompile(`^[A-Z]+\.[A-Z][0-9]{5}$`)

// Credentials are the inputs for one acquisition attempt. They are transient,
// never persisted, and must never appear in logs or error payloads.
type Credentials struct {
	AccountID string
	Secret    string

	// OTPCode is a one-time code supplied by the caller for the MFA challenge.
	OTPCode string
	// OTPSecret is an enrolled TOTP secret. When set and OTPCode is empty, the
	// current code is generated at the moment the challenge appears.
	OTPSecret string
}

// Validate rejects inputs that would waste a browser session.
func (c Credentials) Validate() error {
	if !ValidAccountID(c.AccountID) {
		return NewError(KindValidation, "account identifier does not match required shape")
	}
	if strings.TrimSpace(c.Secret) == "" {
		return NewError(KindValidation, "secret must not be empty")
	}
	if c.OTPCode != "" && !validOTPCode(c.OTPCode) {
		return NewError(KindValidation, "one-time code must be six digits")
	}
	return nil
}

// HasOTP reports whether the attempt can answer an MFA challenge without
// another round-trip to the caller.
func (c Credentials) HasOTP() bool {
	return c.OTPCode != "" || c.OTPSecret != ""
}

// ValidAccountID reports whether id matches the portal's login shape.
func ValidAccountID(id string) bool {
	return accountIDPattern.MatchString(id)
}

func validOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskAccountID returns a partially masked identifier safe for log lines.
// "SILVA.A12345" becomes "SIL***.***45".
func MaskAccountID(id string) string {
	name, suffix, ok := strings.Cut(id, ".")
	if !ok || len(name) < 3 || len(suffix) < 2 {
		return "***"
	}
	return name[:3] + "***.***" + suffix[len(suffix)-2:]
}
