package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash signals a stored value that is not a PHC argon2id string.
	ErrInvalidHash = errors.New("invalid argon2id hash")
	// ErrWeakPassword is wrapped by CheckPasswordPolicy.
	ErrWeakPassword = errors.New("password does not meet policy")
)

const defaultMinLength = 8

var b64 = base64.RawStdEncoding

// argonParams are encoded into every hash so stored credentials keep
// verifying after the configured cost changes.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

func (p argonParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
}

func paramsFrom(cfg config.PasswordConfig) argonParams {
	return argonParams{
		memory:  bounded(cfg.ArgonMemoryKB, 8, 512*1024),
		time:    bounded(cfg.ArgonTime, 1, 10),
		threads: uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		saltLen: bounded(cfg.ArgonSaltLen, 8, 64),
		keyLen:  bounded(cfg.ArgonKeyLen, 16, 64),
	}
}

func bounded(v, lo, hi int) uint32 {
	return uint32(max(lo, min(v, hi)))
}

// HashPassword derives an argon2id hash in PHC format:
// $argon2id$v=19$m=<kb>,t=<iterations>,p=<threads>$<salt>$<key>
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	p := paramsFrom(cfg)
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := p.derive(password, salt)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the stored hash. A
// malformed hash is an error, a mismatch is not.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, p.derive(password, salt)) == 1, nil
}

func parseHash(encoded string) (argonParams, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	var p argonParams
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	p.saltLen, p.keyLen = uint32(len(salt)), uint32(len(key))
	return p, salt, key, nil
}

// CheckPasswordPolicy requires MinLength runes (default 8) and rejects
// whitespace-only passwords.
func CheckPasswordPolicy(password string, cfg config.PasswordConfig) error {
	minLen := cfg.MinLength
	if minLen <= 0 {
		minLen = defaultMinLength
	}
	if strings.TrimSpace(password) == "" || utf8.RuneCountInString(password) < minLen {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, minLen)
	}
	return nil
}

// BurnVerify spends one derivation so sign-in for an unknown email costs the
// same as a wrong password.
func BurnVerify(password string, cfg config.PasswordConfig) {
	p := paramsFrom(cfg)
	_ = p.derive(password, make([]byte, p.saltLen))
}
