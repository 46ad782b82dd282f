package cryptoutils

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
)

// RandomBytes returns n bytes from the operating system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid random length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	return buf, nil
}

// Wipe overwrites a buffer with zeros. Used on every exit path that handled
// key material or plaintext shares.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Equal compares two byte slices in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
