package thinking

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/kokistudios/ultrathink/internal/sessionid"
	"github.com/kokistudios/ultrathink/internal/storage"
)

// Sentinel errors. Every failure returned by this package wraps exactly one
// of them so callers can branch with errors.Is.
var (
	ErrInvalidIdentifier = sessionid.ErrInvalid
	ErrDanglingReference = errors.New("dangling reference")
	ErrUnknownAssumption = errors.New("unknown assumption")
	ErrImmutableField    = errors.New("immutable field violation")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrStorageLocked     = storage.ErrLocked
)

// ErrorCode maps err to the stable machine-readable code used in CLI and MCP
// error payloads.
func ErrorCode(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ErrDanglingReference):
		return "dangling_reference"
	case errors.Is(err, ErrUnknownAssumption):
		return "unknown_assumption"
	case errors.Is(err, ErrImmutableField):
		return "immutable_field"
	case errors.Is(err, ErrInvalidRequest), errors.As(err, &verrs):
		return "validation_error"
	case errors.Is(err, ErrStorageLocked):
		return "storage_locked"
	default:
		return "unexpected_error"
	}
}

// ErrorPayload is the JSON form of a failure, shared by the CLI and the MCP
// server.
type ErrorPayload struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []FieldIssue `json:"details,omitempty"`
}

// NewErrorPayload describes err.
func NewErrorPayload(err error) ErrorPayload {
	return ErrorPayload{
		Error:   ErrorCode(err),
		Message: err.Error(),
		Details: ValidationDetails(err),
	}
}
