package credstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidIdentity indicates a client identity that is unsafe to use as a file name or tool argument.
var ErrInvalidIdentity = errors.New("invalid client identity")

var identityPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ValidateIdentity checks that identity is safe to interpolate into file paths and easy-rsa arguments.
func ValidateIdentity(identity string) error {
	if err := checkIdentity(identity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return nil
}

func checkIdentity(identity string) error {
	trimmed := strings.TrimSpace(identity)
	if trimmed == "" {
		return fmt.Errorf("client name is required")
	}
	if trimmed != identity {
		return fmt.Errorf("client name must not start or end with whitespace")
	}
	if len(trimmed) > 64 {
		return fmt.Errorf("client name must be 64 characters or fewer")
	}
	if strings.Contains(trimmed, "..") {
		return fmt.Errorf("client name must not contain '..'")
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("client name must not contain path separators")
	}
	for _, r := range trimmed {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("client name must not contain whitespace or control characters")
		}
	}
	if !identityPattern.MatchString(trimmed) {
		return fmt.Errorf("client name must match ^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$")
	}
	return nil
}
