package database

import (
	"strings"
	"testing"
	"unicode"
)

func TestGeneratePassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := generatePassword()
		if err != nil {
			t.Fatalf("generatePassword() error = %v", err)
		}
		if len(pw) != passwordLength {
			t.Fatalf("expected length %d, got %d (%q)", passwordLength, len(pw), pw)
		}

		var lower, upper, digits int
		hasSymbol := false
		for _, r := range pw {
			switch {
			case unicode.IsLower(r):
				lower++
			case unicode.IsUpper(r):
				upper++
			case unicode.IsDigit(r):
				digits++
			case strings.ContainsRune(symbolAlphabet, r):
				hasSymbol = true
			}
		}

		if lower < 1 {
			t.Errorf("password %q has no lowercase char", pw)
		}
		if upper < 1 {
			t.Errorf("password %q has no uppercase char", pw)
		}
		if digits < minDigits {
			t.Errorf("password %q has %d digits, want >= %d", pw, digits, minDigits)
		}
		if !hasSymbol {
			t.Errorf("password %q has no symbol char", pw)
		}
	}
}

func TestGeneratePasswordUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		pw, err := generatePassword()
		if err != nil {
			t.Fatalf("generatePassword() error = %v", err)
		}
		if seen[pw] {
			t.Fatalf("generatePassword() produced a duplicate: %q", pw)
		}
		seen[pw] = true
	}
}
