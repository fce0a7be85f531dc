package password

import "errors"

const (
	usernameMinLen = 3
	usernameMaxLen = 22
	passwordMinLen = 8
)

// ErrUsernamePolicy is returned for usernames outside the allowed shape.
var ErrUsernamePolicy = errors.New("username must be 3-22 characters of letters, digits, underscore, or hyphen")

// ErrPasswordPolicy is returned for passwords missing the required length
// or character classes.
var ErrPasswordPolicy = errors.New("password must be at least 8 characters with a digit, a lowercase, and an uppercase letter")

// ValidateUsername enforces the BENTO username shape.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return ErrUsernamePolicy
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return ErrUsernamePolicy
		}
	}
	return nil
}

// ValidatePassword enforces the BENTO password strength rules.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLen {
		return ErrPasswordPolicy
	}
	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		}
	}
	if !hasDigit || !hasLower || !hasUpper {
		return ErrPasswordPolicy
	}
	return nil
}
