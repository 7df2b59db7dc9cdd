package sferror

import "net/http"

type (
	// An SFError represents the error format that can be rendered by writersync server.
	SFError struct {
		HTTPCode   int `json:"-"`
		FieldError err `json:"error"`
	}

	err struct {
		Tag     string `json:"tag,omitempty"`
		Message string `json:"message"`
	}
)

// StatusCode returns the HTTP status code.
func StatusCode(err error) int {
	if sferr, ok := err.(*SFError); ok && sferr.HTTPCode > 0 {
		return sferr.HTTPCode
	}
	return http.StatusInternalServerError
}

// New returns a new SFError with the given message.
func New(message string) *SFError {
	return &SFError{FieldError: err{Message: message}}
}

// NewWithCode returns a new SFError with the given code and message.
func NewWithCode(code int, message string) *SFError {
	return &SFError{HTTPCode: code, FieldError: err{Message: message}}
}

// NewWithTagCode returns a new SFError with the given code, tag and message.
func NewWithTagCode(code int, tag, message string) *SFError {
	return &SFError{HTTPCode: code, FieldError: err{Tag: tag, Message: message}}
}

// Error implements error interface.
func (e *SFError) Error() string {
	return e.FieldError.Message
}

// Tag returns the error tag.
func (e *SFError) Tag() string {
	return e.FieldError.Tag
}
