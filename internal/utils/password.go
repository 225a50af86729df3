package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration,
// password change and reset.
const MinPasswordLength = 8

// SpecialChars is the fixed set a password must draw at least one
// character from.
const SpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// Messages reported by ValidatePasswordStrength, one per rule.
const (
	MsgTooShort    = "Password must be at least 8 characters long"
	MsgNoUppercase = "Password must contain at least one uppercase letter"
	MsgNoLowercase = "Password must contain at least one lowercase letter"
	MsgNoDigit     = "Password must contain at least one number"
	MsgNoSpecial   = "Password must contain at least one special character"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordRequirements records which rules a password satisfied.
type PasswordRequirements struct {
	MinLength    int  `json:"min_length"`
	HasUppercase bool `json:"has_uppercase"`
	HasLowercase bool `json:"has_lowercase"`
	HasDigit     bool `json:"has_digit"`
	HasSpecial   bool `json:"has_special"`
}

// StrengthReport is the result of ValidatePasswordStrength.
type StrengthReport struct {
	Valid        bool                 `json:"is_valid"`
	Errors       []string             `json:"errors"`
	Requirements PasswordRequirements `json:"requirements"`
}

// ValidatePasswordStrength checks every rule independently and lists every
// violation, in a fixed order.
func ValidatePasswordStrength(password string) StrengthReport {
	req := PasswordRequirements{MinLength: MinPasswordLength}
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			req.HasUppercase = true
		case unicode.IsLower(r):
			req.HasLowercase = true
		case unicode.IsDigit(r):
			req.HasDigit = true
		}
		if strings.ContainsRune(SpecialChars, r) {
			req.HasSpecial = true
		}
	}

	errs := []string{}
	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, MsgTooShort)
	}
	if !req.HasUppercase {
		errs = append(errs, MsgNoUppercase)
	}
	if !req.HasLowercase {
		errs = append(errs, MsgNoLowercase)
	}
	if !req.HasDigit {
		errs = append(errs, MsgNoDigit)
	}
	if !req.HasSpecial {
		errs = append(errs, MsgNoSpecial)
	}
	return StrengthReport{Valid: len(errs) == 0, Errors: errs, Requirements: req}
}
