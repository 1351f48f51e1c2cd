// Package models defines the core data structures for danabot.
//
// It includes conversation sessions, person and help request records, inbound
// events and the API response envelope, which are shared across modules.
package models

import (
	"errors"
)

// Error kinds used across modules. Callers classify failures with errors.Is.
var (
	// ErrNotFound reports that a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation reports a missing or malformed answer or field.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized reports that the actor lacks the capability for an action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBlocked reports that the actor has been blocked by an administrator.
	ErrBlocked = errors.New("actor is blocked")
	// ErrConflict reports that a help request was already claimed.
	ErrConflict = errors.New("already claimed")
	// ErrTransport reports that an outbound delivery failed.
	ErrTransport = errors.New("transport failure")
)

// Validation errors for records and form answers
var (
	ErrMissingHandle      = errors.New("display handle is required")
	ErrIncompleteAnswers  = errors.New("incomplete answer set")
	ErrUnknownField       = errors.New("unknown field")
	ErrEmptyFieldValue    = errors.New("field value cannot be empty")
	ErrInvalidIdentity    = errors.New("external identity is required")
	ErrInvalidUrgency     = errors.New("invalid urgency level")
	ErrEmptyDescription   = errors.New("description cannot be empty")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
