// Package crypto holds the random-token and password-hash primitives.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// ErrMalformedHash is returned when an encoded password hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// EncodePasswordHash hashes password with a fresh salt and returns "<hex salt>$<hex hash>".
func EncodePasswordHash(password string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	sum := HashPassword([]byte(password), salt)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum), nil
}

// VerifyEncodedPassword checks password against a value produced by EncodePasswordHash.
func VerifyEncodedPassword(password, encoded string) (bool, error) {
	saltHex, sumHex, ok := strings.Cut(strings.TrimSpace(encoded), "$")
	if !ok {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false, ErrMalformedHash
	}
	sum, err := hex.DecodeString(sumHex)
	if err != nil || len(sum) != int(argonKeyLen) {
		return false, ErrMalformedHash
	}
	return VerifyPassword([]byte(password), salt, sum), nil
}
