package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16
	separator  = ":"
)

// Hasher produces and checks salted secret digests
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// Argon2Params tunes the argon2id key derivation
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params returns the parameters used by NewArgon2Hasher
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

// Argon2Hasher implements Hasher with argon2id
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher creates a hasher with the default parameters
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{params: DefaultArgon2Params()}
}

// NewArgon2HasherWithParams creates a hasher with custom parameters
func NewArgon2HasherWithParams(params Argon2Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

// Hash returns "<salt>:<hash>" for the secret
func (h *Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	sum := h.derive(secret, salt)
	return hex.EncodeToString(salt) + separator + hex.EncodeToString(sum), nil
}

// Verify reports whether secret matches digest
func (h *Argon2Hasher) Verify(secret, digest string) bool {
	parts := strings.Split(digest, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	actual := h.derive(secret, salt)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func (h *Argon2Hasher) derive(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
}

var defaultHasher Hasher = NewArgon2Hasher()

// Hash hashes secret with the default hasher
func Hash(secret string) (string, error) {
	return defaultHasher.Hash(secret)
}

// Verify checks secret against digest with the default hasher
func Verify(secret, digest string) bool {
	return defaultHasher.Verify(secret, digest)
}
