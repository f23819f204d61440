package database

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLength  = 16
	lowerAlphabet   = "abcdefghijklmnopqrstuvwxyz"
	upperAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitAlphabet   = "0123456789"
	symbolAlphabet  = "!#$%&*+-=?@"
	minDigits       = 3
)

// generatePassword produces a 16-char password with at least one lowercase,
// one uppercase, three digits, and a mix of symbols — strong enough for a
// Postgres superuser credential that is shown to the caller exactly once
// and never logged (spec §4.7, §9 "Credentials in responses").
func generatePassword() (string, error) {
	required := make([]byte, 0, passwordLength)

	lower, err := randomChar(lowerAlphabet)
	if err != nil {
		return "", err
	}
	required = append(required, lower)

	upper, err := randomChar(upperAlphabet)
	if err != nil {
		return "", err
	}
	required = append(required, upper)

	for i := 0; i < minDigits; i++ {
		d, err := randomChar(digitAlphabet)
		if err != nil {
			return "", err
		}
		required = append(required, d)
	}

	symbol, err := randomChar(symbolAlphabet)
	if err != nil {
		return "", err
	}
	required = append(required, symbol)

	all := lowerAlphabet + upperAlphabet + digitAlphabet + symbolAlphabet
	for len(required) < passwordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		required = append(required, c)
	}

	return shuffle(required)
}

func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

func shuffle(b []byte) (string, error) {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return string(b), nil
}
