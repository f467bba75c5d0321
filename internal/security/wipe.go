package security

import "crypto/rand"

// WipeBytes scrubs a secret copy in place: first noise, then zeros.
func WipeBytes(b []byte) {
	_, _ = rand.Read(b)
	clear(b)
}
