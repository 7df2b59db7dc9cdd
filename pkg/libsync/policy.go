package libsync

import (
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// MinPasswordLength is the minimum length of an encryption password.
const MinPasswordLength = 12

type classes struct {
	upper, lower, digit, special bool
}

func classify(password []byte) (c classes) {
	for _, r := range string(password) {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		default:
			c.special = true
		}
	}
	return c
}

// ValidatePassword checks the encryption password policy.
// The returned error wraps ErrWeakPassword.
func ValidatePassword(password []byte) error {
	if utf8.RuneCount(password) < MinPasswordLength {
		return errors.Wrapf(ErrWeakPassword, "password must be at least %d characters", MinPasswordLength)
	}

	c := classify(password)
	switch {
	case !c.upper:
		return errors.Wrap(ErrWeakPassword, "password must contain at least one uppercase letter")
	case !c.lower:
		return errors.Wrap(ErrWeakPassword, "password must contain at least one lowercase letter")
	case !c.digit:
		return errors.Wrap(ErrWeakPassword, "password must contain at least one digit")
	case !c.special:
		return errors.Wrap(ErrWeakPassword, "password must contain at least one special character")
	}
	return nil
}

// PasswordStrength returns an advisory score between 0 and 4.
func PasswordStrength(password []byte) int {
	var score int

	n := utf8.RuneCount(password)
	if n >= MinPasswordLength {
		score++
	}
	if n >= 16 {
		score++
	}

	c := classify(password)
	for _, ok := range []bool{c.upper, c.lower, c.digit, c.special} {
		if ok {
			score++
		}
	}

	if score > 4 {
		score = 4
	}
	return score
}

// StrengthLabel returns a human label for the given score.
func StrengthLabel(score int) string {
	switch {
	case score <= 1:
		return "weak"
	case score == 2:
		return "fair"
	case score == 3:
		return "good"
	}
	return "strong"
}
