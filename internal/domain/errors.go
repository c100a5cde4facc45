package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is. The typed errors below unwrap to one of them.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limited")

	// ErrServiceUnavailable marks an upstream source or the batch store as down.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrMalformedResponse marks a source body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNoIdentityFound means no source resolved the author.
	ErrNoIdentityFound = errors.New("no identity found")

	// ErrNoDisplayableData means a source answered without usable records.
	ErrNoDisplayableData = errors.New("no displayable data")

	// ErrSourceDisabled means the source is switched off in configuration.
	ErrSourceDisabled = errors.New("source disabled")
)

// ValidationError rejects one input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names the missing entity, e.g. ("batch", id) or
// ("orcid record", orcid).
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError reports a duplicate key on insert.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// RateLimitError is returned once a source keeps answering 429 after every
// retry. RetryAfter is the last advertised wait, zero when none was sent.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError is a non-success answer from a source. Without a Cause it
// unwraps to ErrServiceUnavailable.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrServiceUnavailable
}

// IdentityError ends an identity fallback chain. Reason is the last failure
// seen along the chain and becomes the message when set.
type IdentityError struct {
	Name   string
	Reason string
}

func NewIdentityError(name, reason string) *IdentityError {
	return &IdentityError{Name: name, Reason: reason}
}

func (e *IdentityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no identity found for %q", e.Name)
	}
	return e.Reason
}

func (e *IdentityError) Unwrap() error { return ErrNoIdentityFound }
