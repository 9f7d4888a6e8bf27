package mintinfo

import (
	"errors"
	"fmt"
)

const (
	CodeValidation          = "VALIDATION"
	CodeUpstreamNotOK       = "UPSTREAM_NOT_OK"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeMalformed           = "MALFORMED_RESPONSE"
)

// MsgNotOK is the envelope error for any non-2xx upstream status.
const MsgNotOK = "API response not OK"

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Message returns the user-facing text for err: the coded message when
// there is one, the raw error text otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		if coded.Code == CodeUpstreamUnavailable && coded.Cause != nil {
			return coded.Cause.Error()
		}
		return coded.Message
	}
	return err.Error()
}
