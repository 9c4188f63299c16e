package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate applies the account password policy. Length is measured in
// runes so multi-byte characters count once.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RejectVeryWeak && isTrivial(password) {
		return ErrWeakPassword
	}

	return nil
}

// isTrivial catches only the most obviously guessable inputs: a single
// repeated character, short all-digit PINs, and a short denylist of
// universal passwords. Full strength estimation is out of scope.
func isTrivial(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	if repeatsOneRune(s) {
		return true
	}

	if allDigits(s) && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password123", "123456", "123456789", "qwerty", "qwerty123", "11111111":
		return true
	}

	return false
}

func repeatsOneRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
