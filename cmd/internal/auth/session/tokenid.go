package session

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// randReader is swapped in tests to simulate entropy failure.
var randReader io.Reader = rand.Reader

// newTokenID returns nBytes of crypto randomness, URL-safe without padding.
func newTokenID(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
