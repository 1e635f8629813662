// Package password hashes and verifies user passwords with argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost = 3
	memory   = 64 * 1024
	threads  = 2
	keyLen   = 32
	saltLen  = 16
)

var ErrMalformedHash = errors.New("malformed password hash")

// Hash returns a self-describing argon2id hash string. The salt and the
// parameters travel inside the encoded value, so cost changes only affect
// newly hashed passwords.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, timeCost, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the stored parameters and compares in
// constant time.
func Verify(password, encoded string) (bool, error) {
	var (
		version          int
		mem, t, parallel uint32
		saltB64, keyB64  string
	)
	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		&version, &mem, &t, &parallel, &saltB64)
	if err != nil || n != 5 {
		return false, ErrMalformedHash
	}
	if version != argon2.Version || parallel == 0 || parallel > 255 {
		return false, ErrMalformedHash
	}

	// Sscanf's %s is greedy; the trailing segment still holds "salt$key".
	sep := -1
	for i, c := range saltB64 {
		if c == '$' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return false, ErrMalformedHash
	}
	keyB64 = saltB64[sep+1:]
	saltB64 = saltB64[:sep]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(keyB64)
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, t, mem, uint8(parallel), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
