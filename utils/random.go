package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns an upper-hex string of n random bytes, used for
// hold tokens and broadcast job ids.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateNumericRef returns a numeric reference of the given length,
// used for human-readable ticket references.
func GenerateNumericRef(length int) (string, error) {
	const charset = "0123456789"

	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	for i := 0; i < length; i++ {
		code[i] = charset[int(code[i])%len(charset)]
	}
	return string(code), nil
}
