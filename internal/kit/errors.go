package kit

import "fmt"

// API error codes.
const (
	ErrCodeNoAPIKey           = "invalid_api_key"
	ErrCodeNoAPISecret        = "invalid_api_secret"
	ErrCodeNoEmail            = "invalid_email"
	ErrCodeAPI                = "api_error"
	ErrCodeTooManyFields      = "too_many_fields"
	ErrCodeSubscriberNotFound = "subscriber_not_found"
)

// APIError is a structured Kit API failure. StatusCode is 0 when the
// request never produced an HTTP response.
type APIError struct {
	Code       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("kit: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kit: %s: %s", e.Code, e.Message)
}
