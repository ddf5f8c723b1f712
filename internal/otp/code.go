package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateCode returns a uniformly random decimal code of the given length.
// Leading zeros are kept.
func GenerateCode(length int) (string, error) {
	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
