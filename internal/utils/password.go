package utils

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword enforces the account password policy: minimum 6
// characters with at least one digit, one lowercase letter, one uppercase
// letter and one non-alphanumeric character.
func ValidatePassword(password string) []string {
	var violations []string

	if len(password) < 6 {
		violations = append(violations, "Password must be at least 6 characters long.")
	}

	var hasDigit, hasLower, hasUpper, hasSymbol bool
	for _, ch := range password {
		switch {
		case unicode.IsDigit(ch):
			hasDigit = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsUpper(ch):
			hasUpper = true
		default:
			hasSymbol = true
		}
	}

	if !hasDigit {
		violations = append(violations, "Password must contain at least one digit.")
	}
	if !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter.")
	}
	if !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter.")
	}
	if !hasSymbol {
		violations = append(violations, "Password must contain at least one non-alphanumeric character.")
	}

	return violations
}
