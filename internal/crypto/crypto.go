// Package crypto provides the one-way hashing primitives used to authorize
// commands: Argon2id password hashes, the per-user second password hash,
// and the SHA-512 attribution binding a command to that second hash.
package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// keyLen is the derived key length in bytes.
	keyLen = 32
	// saltLen is the Argon2id salt length in bytes.
	saltLen = 16

	// Argon2id parameters.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	passwordPrefix = "argon2id"
)

// ErrMalformedHash is returned for stored hashes not produced by HashPassword.
var ErrMalformedHash = errors.New("malformed password hash")

// NewSalt returns a random hex-encoded salt.
func NewSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("random salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)
}

// HashPassword hashes a login password with a fresh salt.
// The result has the form argon2id$<salt>$<key>.
func HashPassword(password string) (string, error) {
	salt, err := NewSalt()
	if err != nil {
		return "", err
	}
	raw, _ := hex.DecodeString(salt)
	return passwordPrefix + "$" + salt + "$" + hex.EncodeToString(derive(password, raw)), nil
}

// VerifyPassword reports whether password matches a hash from HashPassword.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != passwordPrefix {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	return subtle.ConstantTimeCompare(derive(password, salt), want) == 1, nil
}

// SecondPasswordHash derives the secret both client and server use to
// attribute commands to a user. The salt is stored with the user record.
func SecondPasswordHash(password, saltHex string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return "", fmt.Errorf("invalid second password salt")
	}
	return hex.EncodeToString(derive(password, salt)), nil
}

// Attribution is the hex SHA-512 of seq || deviceID || secondPasswordHash || encodedAction.
func Attribution(seq int64, deviceID, secondPasswordHash, encodedAction string) string {
	h := sha512.New()
	h.Write([]byte(strconv.FormatInt(seq, 10)))
	h.Write([]byte(deviceID))
	h.Write([]byte(secondPasswordHash))
	h.Write([]byte(encodedAction))
	return hex.EncodeToString(h.Sum(nil))
}
