package affiliate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureLength is the number of hex characters kept from the HMAC
const SignatureLength = 12

// SignatureParam is the query parameter carrying the attribution signature
const SignatureParam = "dl_sig"

// Signer signs attribution parameters so downstream click handlers can tell
// our links from tampered copies
type Signer struct {
	secret []byte
}

// NewSigner returns nil for an empty secret, which disables signing
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

// Message joins tracking values and the destination in a pipe-delimited string
func Message(t Tracking, destination string) string {
	return strings.Join([]string{t.Source, t.Medium, t.Campaign, destination}, "|")
}

// Sign returns the truncated hex HMAC-SHA256 of message
func (s *Signer) Sign(message string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))[:SignatureLength]
}

// Verify compares in constant time
func (s *Signer) Verify(message, signature string) bool {
	return hmac.Equal([]byte(s.Sign(message)), []byte(signature))
}
