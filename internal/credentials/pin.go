package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultPINLength is the length of generated family PINs
const DefaultPINLength = 4

const digits = "0123456789"

// GenerateFamilyPIN generates a random numeric PIN of DefaultPINLength digits
func GenerateFamilyPIN() (string, error) {
	return GeneratePIN(DefaultPINLength)
}

// GeneratePIN generates a random numeric PIN of the given length
func GeneratePIN(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid pin length %d", length)
	}

	pin := make([]byte, length)
	for i := range pin {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		pin[i] = digits[num.Int64()]
	}

	return string(pin), nil
}
