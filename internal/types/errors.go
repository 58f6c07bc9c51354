package types

import (
	"errors"
	"fmt"
)

// Error codes carried by ScrapeError
const (
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeBrowser        = "BROWSER_FAILED"
	ErrCodeElementMissing = "ELEMENT_NOT_FOUND"
	ErrCodeOptionMissing  = "OPTION_NOT_FOUND"
	ErrCodeTimeout        = "WAIT_TIMEOUT"
	ErrCodeMalformedRow   = "MALFORMED_ROW"
	ErrCodeLayoutChanged  = "LAYOUT_CHANGED"
	ErrCodeFetchFailed    = "FETCH_FAILED"
)

// ScrapeError is an error tagged with the stage of the workflow that failed.
type ScrapeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the code of the first ScrapeError in err's chain, or "".
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
