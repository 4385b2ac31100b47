package xerror

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedToken matches every MalformedTokenError with errors.Is.
var ErrMalformedToken = errors.New("malformed continuation token")

// MalformedTokenError reports a structural defect in a continuation
// document. It is permanent: retrying the same document fails again.
type MalformedTokenError struct {
	// Field is the path of the offending field, e.g. "compositeToken.range.min"
	// or "resumeValues[1]". Empty when the document itself could not be parsed.
	Field  string
	Reason string
}

func NewMalformedToken(field string, format string, a ...any) *MalformedTokenError {
	return &MalformedTokenError{
		Field:  field,
		Reason: fmt.Sprintf(format, a...),
	}
}

func (e *MalformedTokenError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed continuation token: %s", e.Reason)
	}
	return fmt.Sprintf("malformed continuation token: field %q: %s", e.Field, e.Reason)
}

func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

// IsMalformedToken reports whether err is, or wraps, a MalformedTokenError.
func IsMalformedToken(err error) bool {
	return errors.Is(err, ErrMalformedToken)
}

// AsMalformedToken extracts the MalformedTokenError from err's chain.
func AsMalformedToken(err error) (*MalformedTokenError, bool) {
	var me *MalformedTokenError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
