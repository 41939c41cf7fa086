package admin

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	hasDigitRe     = regexp.MustCompile(`[0-9]`)
	hasUppercaseRe = regexp.MustCompile(`[A-Z]`)
)

// HashPassword generates a salted adaptive hash of the given plaintext.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty", errors.CategoryBadInput)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash validates the given cleartext password against the
// stored hash. The comparison does not leak timing proportional to any
// matching prefix.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

// ValidatePasswordStrength enforces the admin password policy: at least 8
// characters including one digit and one uppercase letter.
func ValidatePasswordStrength(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(8, 0),
		validation.Match(hasDigitRe),
		validation.Match(hasUppercaseRe),
	)
	if err != nil {
		return ErrWeakPassword
	}
	return nil
}
