package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

const accessTokenBytes = 32

// NewID returns a short random hex identifier, used for queue consumer
// names and similar non-secret handles.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewAccessToken returns an unguessable URL-safe album access token.
func NewAccessToken() string {
	b := make([]byte, accessTokenBytes)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
