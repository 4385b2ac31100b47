package xerror

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	XORD_UNEXPECTED         = "XORDU"
	XORD_MALFORMED_TOKEN    = "XORDM"
	XORD_FETCH_FAILED       = "XORDF"
	XORD_CANCELLED          = "XORDC"
	XORD_INVALID_STATE      = "XORDS"
	XORD_NOTHING_TO_SUSPEND = "XORDN"
	XORD_CONFIG_ERROR       = "XORDG"
)

var existingErrorCodeMap = map[string]string{
	XORD_MALFORMED_TOKEN:    "Malformed continuation token",
	XORD_FETCH_FAILED:       "Partition fetch failed",
	XORD_CANCELLED:          "Query cancelled",
	XORD_INVALID_STATE:      "Invalid query state",
	XORD_NOTHING_TO_SUSPEND: "Nothing to suspend",
	XORD_CONFIG_ERROR:       "Configuration error",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &XorderError{}

type XorderError struct {
	Err error

	ErrorCode string
}

// New creates an error with the given code and message.
func New(errorCode string, errorMsg string) *XorderError {
	return &XorderError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf is New with a format string.
func Newf(errorCode string, format string, a ...any) *XorderError {
	return &XorderError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// Wrap attaches an error code to err. Wrap returns nil when err is nil.
func Wrap(errorCode string, err error, msg string) *XorderError {
	if err == nil {
		return nil
	}
	return &XorderError{
		Err:       errors.Wrap(err, msg),
		ErrorCode: errorCode,
	}
}

func (er *XorderError) Error() string {
	return fmt.Sprintf("Code: %s. Name: %s. Description: %s.",
		er.ErrorCode, GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *XorderError) Unwrap() error {
	return er.Err
}

// Cause returns the innermost error for github.com/pkg/errors.Cause.
func (er *XorderError) Cause() error {
	return errors.Cause(er.Err)
}

// HasCode reports whether err or any error it wraps carries code.
func HasCode(err error, code string) bool {
	var xe *XorderError
	for err != nil {
		if errors.As(err, &xe) {
			if xe.ErrorCode == code {
				return true
			}
			err = xe.Err
			continue
		}
		return false
	}
	return false
}
