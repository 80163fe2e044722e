package common

import "crypto/rand"

// GenerateRandByteArray returns size bytes read from crypto/rand.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return b
}

// WipeByteArray overwrites the contents of b with zeros.
// Passwords read from the terminal are wiped with it once hashed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
