package validate

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyEmail        = errors.New("please enter your email address")
	ErrInvalidEmail      = errors.New("please enter a valid email address")
	ErrNoProductSelected = errors.New("product not selected")
)

// local@domain.tld where no part contains whitespace or '@'. Whitespace is
// the browser's notion of it: RE2's \s alone misses \v, NBSP, the Unicode
// separators and BOM.
var emailRe = regexp.MustCompile(`^[^\s\x0B\p{Z}\x{FEFF}@]+@[^\s\x0B\p{Z}\x{FEFF}@]+\.[^\s\x0B\p{Z}\x{FEFF}@]+$`)

// IsValidEmail reports whether s has the minimal address shape. Callers trim first.
func IsValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// NormalizeEmail trims raw and validates it.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrEmptyEmail
	}
	if !IsValidEmail(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ProductSelected checks that a checkout has something to buy.
func ProductSelected(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return ErrNoProductSelected
	}
	return nil
}
