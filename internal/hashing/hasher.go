package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes short secrets (OTP codes) with argon2id and a server-side pepper.
// Encoded hashes are self-describing, so parameter changes do not invalidate
// codes that are already stored.
type Hasher struct {
	params Argon2Params
	pepper string
}

func NewHasher(params Argon2Params, pepper string) *Hasher {
	if params.SaltLength == 0 {
		params.SaltLength = 16
	}
	if params.KeyLength == 0 {
		params.KeyLength = 32
	}
	if params.Iterations == 0 {
		params.Iterations = 1
	}
	if params.Parallelism == 0 {
		params.Parallelism = 1
	}
	if params.Memory == 0 {
		params.Memory = 19 * 1024
	}
	return &Hasher{params: params, pepper: pepper}
}

// Hash returns the encoded argon2id hash of secret in the form
// argon2id$v=19$m=...,t=...,p=...$salt$key.
func (h *Hasher) Hash(secret, context string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(h.material(secret, context), salt,
		h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. Comparison is constant time.
func (h *Hasher) Verify(secret, context, encoded string) (bool, error) {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(h.material(secret, context), salt,
		params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// Context is mixed in so a hash produced for one purpose never verifies for another.
func (h *Hasher) material(secret, context string) []byte {
	return []byte(secret + h.pepper + context)
}

func decode(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != algorithm {
		return params, nil, nil, ErrInvalidHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return params, nil, nil, ErrIncompatibleVersion
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	params.Memory = memory
	params.Iterations = iterations
	params.Parallelism = parallelism

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return params, nil, nil, ErrInvalidHash
	}

	return params, salt, key, nil
}
