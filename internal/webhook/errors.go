package webhook

import "net/http"

// Gate failure codes. Each one is terminal for the current request and
// produced before any side effect.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidPluginID  = "invalid_plugin_id"
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidData      = "invalid_data"
	CodeInvalidEmail     = "invalid_email"
	CodeInvalidEvent     = "invalid_event"
)

// Error is a terminal gate failure in the webhook pipeline. The message
// is safe to echo to the caller; internal detail stays in the logs.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	return e.Message
}

func errInvalidRequest(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

func errInvalidPluginID() *Error {
	return &Error{Code: CodeInvalidPluginID, Message: "Plugin ID not found in configuration", HTTPStatus: http.StatusForbidden}
}

func errInvalidSignature() *Error {
	return &Error{Code: CodeInvalidSignature, Message: "Invalid signature", HTTPStatus: http.StatusForbidden}
}

func errInvalidData(message string) *Error {
	return &Error{Code: CodeInvalidData, Message: message, HTTPStatus: http.StatusBadRequest}
}

func errInvalidEmail() *Error {
	return &Error{Code: CodeInvalidEmail, Message: "Invalid email address", HTTPStatus: http.StatusBadRequest}
}

func errInvalidEvent() *Error {
	return &Error{Code: CodeInvalidEvent, Message: "Missing event type", HTTPStatus: http.StatusBadRequest}
}
