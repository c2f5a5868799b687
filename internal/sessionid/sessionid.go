// Package sessionid defines which strings may name a session. Every storage
// address is derived from a session id, so the rule is checked before any
// path, key or row is built from one.
package sessionid

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// MaxLength is the longest accepted session id.
const MaxLength = 128

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid identifier")

var pattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate reports whether id is non-empty, at most MaxLength characters and
// made only of ASCII letters, digits, hyphens and underscores.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session ID cannot be empty", ErrInvalid)
	}
	if len(id) > MaxLength {
		return fmt.Errorf("%w: session ID too long (max %d characters)", ErrInvalid, MaxLength)
	}
	if !pattern.MatchString(id) {
		return fmt.Errorf("%w: invalid session ID %q: must contain only alphanumeric characters, hyphens, and underscores", ErrInvalid, id)
	}
	return nil
}

// New returns a fresh random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}
