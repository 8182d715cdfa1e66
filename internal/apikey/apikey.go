// Package apikey generates, hashes and validates tenant API keys.
//
// A key is a mode prefix followed by 64 random bytes in unpadded URL-safe
// base64. Only the SHA-256 hex digest of the full key is ever stored.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	LivePrefix = "tc_live_"
	TestPrefix = "tc_test_"

	keyBytes = 64

	// Encoded body length bounds. 64 bytes encode to 86 characters.
	minBodyLen = 80
	maxBodyLen = 90
)

var ErrInvalidArgument = errors.New("apikey: key must not be empty")

// Generate mints a new key. The plaintext is returned to the caller once and
// must not be persisted or logged.
func Generate(production bool) (plaintext, hash, prefix string, err error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("read random bytes: %w", err)
	}

	prefix = TestPrefix
	if production {
		prefix = LivePrefix
	}
	plaintext = prefix + base64.RawURLEncoding.EncodeToString(buf)

	hash, err = Hash(plaintext)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, hash, prefix, nil
}

// Hash returns the lowercase hex SHA-256 digest of key.
func Hash(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidArgument
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

// Validate compares key against storedHash in constant time. Malformed input
// yields false.
func Validate(key, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed, err := Hash(key)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(storedHash))) == 1
}

// ExtractPrefix returns the recognized mode prefix of key, or "".
func ExtractPrefix(key string) string {
	switch {
	case strings.HasPrefix(key, LivePrefix):
		return LivePrefix
	case strings.HasPrefix(key, TestPrefix):
		return TestPrefix
	}
	return ""
}

// IsValidFormat checks the prefix and body length without hashing.
func IsValidFormat(key string) bool {
	prefix := ExtractPrefix(key)
	if prefix == "" {
		return false
	}
	n := len(key) - len(prefix)
	return n >= minBodyLen && n <= maxBodyLen
}

// Redact returns the key prefix followed by an ellipsis, for logs.
func Redact(key string) string {
	if p := ExtractPrefix(key); p != "" {
		return p + "..."
	}
	return "..."
}
