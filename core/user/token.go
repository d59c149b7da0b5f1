package user

import (
	"crypto/rand"
	"math/big"
)

// resetTokenLength is the number of digits in a password reset token.
// Digits only: tokens are typed in from an email.
const resetTokenLength = 6

var ten = big.NewInt(10)

func generateResetToken(length int) (string, error) {
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
