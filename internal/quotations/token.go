package quotations

import (
	"crypto/rand"
	"encoding/hex"
)

// accessTokenBytes yields 40 hex characters per token.
const accessTokenBytes = 20

// NewAccessToken generates an opaque random token used for unauthenticated
// customer access. Tokens are assigned exactly once, at creation.
func NewAccessToken() string {
	b := make([]byte, accessTokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("quotations: read random: " + err.Error())
	}
	return hex.EncodeToString(b)
}
