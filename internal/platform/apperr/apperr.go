// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for Manhwari.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable application codes and user-friendly messages.
  - Classification: One constructor per error kind the core can surface
    (NotFound, BadInput, Conflict, RateLimited, Unauthorised, ExternalAPI, SyncFailed, Transient).
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Application Codes

// Machine-readable identifiers carried in the error envelope.
const (
	CodeNotFound         = "manhwa_not_found"
	CodeSearchFailed     = "manhwa_search_failed"
	CodeExternalAPI      = "external_api_error"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInvalidData      = "invalid_manhwa_data"
	CodeSyncFailed       = "sync_failed"
	CodePaginationLimit  = "pagination_limit_exceeded"
	CodeBadInput         = "bad_input"
	CodeValidationFailed = "validation_failed"
	CodeConflict         = "conflict"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeInternal         = "internal_error"
)

// AppError is the canonical error type for the Manhwari API.
//
// It carries an HTTP status code, a machine-readable application code, a
// client-safe message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries or
// upstream response bodies).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "manhwa_not_found").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for validation_failed responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Manhwa") // Returns "Manhwa not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// BadInput creates a 400 [AppError] for semantically invalid caller input.
func BadInput(msg string) *AppError {
	return &AppError{
		Code:       CodeBadInput,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidData creates a 400 [AppError] for malformed manhwa payloads.
func InvalidData(msg string) *AppError {
	return &AppError{
		Code:       CodeInvalidData,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidationFailed,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// RateLimited creates a 429 [AppError].
//
// It covers both the service's own limiters and upstream captcha challenges.
func RateLimited(msg string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    msg,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// PaginationLimit creates a 400 [AppError] for requests beyond the upstream
// pagination ceiling (offset + limit > 10 000).
func PaginationLimit(offset, limit, ceiling int) *AppError {
	return &AppError{
		Code:       CodePaginationLimit,
		Message:    fmt.Sprintf("Pagination window %d exceeds the maximum of %d results", offset+limit, ceiling),
		HTTPStatus: http.StatusBadRequest,
	}
}

// # Server Errors (5xx)

// ExternalAPI creates a 502 [AppError] wrapping an upstream catalogue failure.
// The cause is stored for logging but is never sent to the client.
func ExternalAPI(msg string, cause error) *AppError {
	return &AppError{
		Code:       CodeExternalAPI,
		Message:    msg,
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// SyncFailed creates a 500 [AppError] wrapping a failed synchronisation attempt.
//
// The message is preserved so rate-limit reasons remain visible to operators.
func SyncFailed(msg string, cause error) *AppError {
	return &AppError{
		Code:       CodeSyncFailed,
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// SearchFailed creates a 500 [AppError] for catalogue search pipeline failures.
func SearchFailed(cause error) *AppError {
	return &AppError{
		Code:       CodeSearchFailed,
		Message:    "Manhwa search failed",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// Store/driver (Transient) failures are surfaced through this constructor.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsCode reports whether err carries the given application code.
func IsCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}

// IsNotFound reports whether err represents a missing resource (local or upstream).
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsRateLimited reports whether err originates from a rate limiter or captcha.
func IsRateLimited(err error) bool {
	return IsCode(err, CodeRateLimited)
}
