package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/leadline/go-crm-client/internal/errors"
)

// Error is a non-2xx response from the CRM API. Message carries the
// server-provided message verbatim so callers can surface it unchanged.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == statusCode
}

// errorBody is the shape the API uses for error responses.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// newError builds an Error from a response body, falling back to the HTTP
// status text when the body carries no message.
func newError(statusCode int, body []byte) *Error {
	var eb errorBody
	message := http.StatusText(statusCode)
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Message != "":
			message = eb.Message
		case eb.Error != "":
			message = eb.Error
		}
	}
	return &Error{StatusCode: statusCode, Message: message}
}
