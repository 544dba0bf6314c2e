package discount

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a referenced discount does not exist.
// Malformed identifiers are treated the same as unknown ones.
var ErrNotFound = errors.New("discount not found")

// ValidationError reports that a candidate discount violated one or more
// validation rules. It carries every violated rule, not just the first, so
// the admin UI can surface all of them at once. The mutation is never
// partially applied.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, ", ")
}

// AsValidation unwraps err into a *ValidationError, or returns nil.
func AsValidation(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
