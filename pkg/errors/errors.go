// Package errors provides the error types shared by the scrape, resolve and
// dispatch stages. Typed errors match the sentinels below with errors.Is,
// so callers branch on the kind of failure without knowing the type.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is is an alias for the standard library errors.Is.
var Is = errors.Is

// As is an alias for the standard library errors.As.
var As = errors.As

// Join is an alias for the standard library errors.Join.
var Join = errors.Join

// Common sentinel errors for the seatwatch system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates that an upstream source or sink is temporarily unavailable
	ErrUnavailable = errors.New("unavailable")

	// ErrRateLimited indicates that a rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrDelivery indicates that a notification could not be handed to its channel
	ErrDelivery = errors.New("delivery failed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// FetchError represents a failure to obtain a catalog snapshot from upstream.
// Fetch errors are propagated to the batch trigger, which owns retries.
type FetchError struct {
	Semester   string
	Prefix     string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s/%s failed (status %d): %s", e.Semester, e.Prefix, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetch %s/%s failed: %s", e.Semester, e.Prefix, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *FetchError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrUnavailable
	}
	return false
}

// NewFetchError creates a new FetchError
func NewFetchError(semester, prefix string, statusCode int, message string) *FetchError {
	return &FetchError{
		Semester:   semester,
		Prefix:     prefix,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// StoreError represents a failed read or write against a persistence store
type StoreError struct {
	Operation string // "read", "write", "append", "prune", "delete"
	Resource  string // "snapshot", "events", "subscriptions", "run_state", "feed"
	Key       string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s of %s %s: %v", e.Operation, e.Resource, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s of %s: %v", e.Operation, e.Resource, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// DeliveryError records one failed notification hand-off. Delivery errors are
// collected into a dispatch result and never abort sibling deliveries.
type DeliveryError struct {
	Channel string // "push", "discord", "webhook"
	UserID  string // empty for community channels
	EventID string
	Target  string
	Err     error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s delivery of event %s to user %s failed: %v", e.Channel, e.EventID, e.UserID, e.Err)
	}
	return fmt.Sprintf("%s delivery of event %s to %s failed: %v", e.Channel, e.EventID, e.Target, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(channel, userID, eventID, target string, err error) *DeliveryError {
	return &DeliveryError{
		Channel: channel,
		UserID:  userID,
		EventID: eventID,
		Target:  target,
		Err:     err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsUnavailable checks if an error indicates upstream unavailability
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsDelivery checks if an error is a delivery failure
func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

// Helper wrapping functions for common patterns

// WrapStore wraps an error as a StoreError
func WrapStore(operation, resource, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{
		Operation: operation,
		Resource:  resource,
		Key:       key,
		Err:       err,
	}
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapFetch wraps an error as a FetchError
func WrapFetch(semester, prefix string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{
		Semester: semester,
		Prefix:   prefix,
		Message:  err.Error(),
		Err:      err,
	}
}
