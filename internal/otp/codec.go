// Package otp generates, hashes, and compares one-time codes and hands issued codes to a Dispatcher.
// Plaintext codes exist only between GenerateCode and Dispatch; only the hash is persisted.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

var ten = big.NewInt(10)

// GenerateCode returns a 6-digit numeric code (e.g. "042917"). Each digit is drawn uniformly from crypto/rand.
func GenerateCode() (string, error) {
	s := make([]byte, CodeLength)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// HashCode returns the hex-encoded SHA-256 of code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual hashes candidate and compares it with storedHash in constant time.
func CodeEqual(candidate, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(candidate)), []byte(storedHash)) == 1
}
