package models

import "errors"

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// Error codes.
const (
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeExternalRejected    = "EXTERNAL_REJECTED"
	CodePublisher           = "PUBLISHER"
)

// Error constructors.
var (
	ErrValidation = func(msg string) *AppError {
		return &AppError{Code: CodeValidation, Message: msg, Status: 400}
	}
	ErrNotFound = func(msg string) *AppError {
		return &AppError{Code: CodeNotFound, Message: msg, Status: 404}
	}
	ErrExternalUnavailable = func(msg string) *AppError {
		return &AppError{Code: CodeExternalUnavailable, Message: msg, Status: 503}
	}
	ErrExternalRejected = func(msg string) *AppError {
		return &AppError{Code: CodeExternalRejected, Message: msg, Status: 502}
	}
	ErrPublisher = func(msg string) *AppError {
		return &AppError{Code: CodePublisher, Message: msg, Status: 500}
	}
)

// Command result status identifiers. The wire surface historically carried
// two names for the failure status; both are kept as stable aliases.
const (
	CommandStatusOK     = "ok"
	CommandStatusError  = "error"
	CommandStatusFailed = CommandStatusError
)

// CodeOf extracts the error code from err, or "" if err is not an AppError.
func CodeOf(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ""
}

// IsValidation reports whether err is a caller-input validation error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsNotFound reports whether err refers to an unknown zone or client index.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsExternalUnavailable reports whether the audio-topology server could not
// be reached at all.
func IsExternalUnavailable(err error) bool { return CodeOf(err) == CodeExternalUnavailable }

// IsExternalRejected reports whether the audio-topology server explicitly
// refused the instruction.
func IsExternalRejected(err error) bool { return CodeOf(err) == CodeExternalRejected }
