package libsync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Error kinds returned by the sync stack.
// They are matched with errors.Is.
var (
	// ErrConfiguration is returned when the endpoint or the credentials are missing.
	ErrConfiguration = errors.New("sync is not configured")
	// ErrKeyLocked is returned when the bulk key has not been unlocked.
	ErrKeyLocked = errors.New("bulk key is locked")
	// ErrAuthentication is returned when the server rejects credentials or token.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConflict is used for per-item conflicts. It is recorded, never raised by a sync pass.
	ErrConflict = errors.New("conflict detected")
	// ErrDecryption is returned when a ciphertext cannot be opened with the given key or password.
	ErrDecryption = errors.New("decryption failed")
	// ErrTransport is returned on network failures, timeouts and server errors.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse is returned when the server response cannot be understood.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrAlreadyExists is returned when the server refuses to overwrite a resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrWeakPassword is returned when a password does not satisfy the policy.
	ErrWeakPassword = errors.New("weak password")
)

// An Error represents a failed request to the sync server.
type Error struct {
	Kind       error
	StatusCode int
	Tag        string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.StatusCode > 0:
		return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
	case e.Message != "":
		return e.Message
	case e.Cause != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	case e.Cause != nil:
		return e.Cause.Error()
	case e.Kind != nil:
		return e.Kind.Error()
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Unwrap allows errors.Is to match both the kind and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the error kind matching the given HTTP status code.
func KindOf(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusConflict:
		return ErrAlreadyExists
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return ErrTransport
	}
	return nil
}

func transportError(op string, err error) error {
	return &Error{Kind: ErrTransport, Cause: errors.Wrap(err, op)}
}

func malformedError(err error) error {
	return &Error{Kind: ErrMalformedResponse, Cause: errors.Wrap(err, "could not parse response")}
}

func parseError(r io.Reader, code int) error {
	var payload struct {
		Err struct {
			Tag     string `json:"tag"`
			Message string `json:"message"`
		} `json:"error"`
	}

	e := &Error{
		Kind:       KindOf(code),
		StatusCode: code,
	}
	if err := json.NewDecoder(r).Decode(&payload); err == nil {
		e.Tag = payload.Err.Tag
		e.Message = payload.Err.Message
	}
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}
