// Package hasher derives and verifies PBKDF2-HMAC-SHA256 password digests.
//
// A digest is a self-describing blob:
//
//	version (1 byte, 0x01) | iterations (uint32, big-endian) | salt length (1 byte) | salt | key
//
// so verification needs nothing but the blob. Changing the target iteration
// count of a Hasher affects new digests only.
package hasher

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version1 tags PBKDF2-HMAC-SHA256 digests.
	Version1 byte = 0x01

	// DefaultIterationCount follows the OWASP recommendation for PBKDF2-HMAC-SHA256.
	DefaultIterationCount = 600_000

	SaltSize = 16
	KeySize  = 32

	headerSize = 1 + 4 + 1
)

// ErrInvalidDigest is returned by Decode for blobs it cannot parse.
var ErrInvalidDigest = errors.New("invalid password digest")

// Hasher produces digests at a target iteration count that may be changed at
// runtime. It is safe for concurrent use.
type Hasher struct {
	iterations atomic.Int64
}

// ValidIterationCount reports whether n fits the digest's uint32 field.
func ValidIterationCount(n int) bool {
	return n >= 1 && int64(n) <= math.MaxUint32
}

// New returns a Hasher targeting iterations, or DefaultIterationCount when
// iterations is not a valid count.
func New(iterations int) *Hasher {
	h := &Hasher{}
	if !ValidIterationCount(iterations) {
		iterations = DefaultIterationCount
	}
	h.iterations.Store(int64(iterations))
	return h
}

// IterationCount returns the current target.
func (h *Hasher) IterationCount() int {
	return int(h.iterations.Load())
}

// SetIterationCount changes the target for new digests.
func (h *Hasher) SetIterationCount(n int) error {
	if !ValidIterationCount(n) {
		return fmt.Errorf("iteration count out of range: %d", n)
	}
	h.iterations.Store(int64(n))
	return nil
}

// Hash derives a digest at the current target iteration count.
func (h *Hasher) Hash(password string) ([]byte, error) {
	return HashWithIterations(password, h.IterationCount())
}

// NeedsRehash reports whether digest was produced with an iteration count
// other than the current target. Unparseable digests never need a rehash:
// they never verify.
func (h *Hasher) NeedsRehash(digest []byte) bool {
	d, err := Decode(digest)
	if err != nil {
		return false
	}
	return d.Iterations != h.IterationCount()
}

// HashWithIterations derives a digest with a fresh random salt.
func HashWithIterations(password string, iterations int) ([]byte, error) {
	if !ValidIterationCount(iterations) {
		return nil, fmt.Errorf("iteration count out of range: %d", iterations)
	}

	salt := common.GenerateRandByteArray(SaltSize)
	key := pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)

	out := make([]byte, 0, headerSize+SaltSize+KeySize)
	out = append(out, Version1)
	out = binary.BigEndian.AppendUint32(out, uint32(iterations))
	out = append(out, byte(len(salt)))
	out = append(out, salt...)
	out = append(out, key...)
	return out, nil
}

// Verify reports whether password matches digest. Malformed digests do not
// match.
func Verify(password string, digest []byte) bool {
	d, err := Decode(digest)
	if err != nil {
		return false
	}
	key := pbkdf2.Key([]byte(password), d.Salt, d.Iterations, len(d.Key), sha256.New)
	return subtle.ConstantTimeCompare(key, d.Key) == 1
}

// Digest is a decoded digest blob.
type Digest struct {
	Version    byte
	Iterations int
	Salt       []byte
	Key        []byte
}

// Decode parses a digest blob.
func Decode(digest []byte) (Digest, error) {
	if len(digest) < headerSize {
		return Digest{}, fmt.Errorf("%w: %d bytes", ErrInvalidDigest, len(digest))
	}
	if digest[0] != Version1 {
		return Digest{}, fmt.Errorf("%w: version %#x", ErrInvalidDigest, digest[0])
	}

	iterations := binary.BigEndian.Uint32(digest[1:5])
	saltLen := int(digest[5])
	rest := digest[headerSize:]

	switch {
	case iterations == 0:
		return Digest{}, fmt.Errorf("%w: zero iterations", ErrInvalidDigest)
	case saltLen == 0 || len(rest) <= saltLen:
		return Digest{}, fmt.Errorf("%w: truncated", ErrInvalidDigest)
	}

	return Digest{
		Version:    digest[0],
		Iterations: int(iterations),
		Salt:       rest[:saltLen],
		Key:        rest[saltLen:],
	}, nil
}
