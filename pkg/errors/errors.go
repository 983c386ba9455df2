// Package errors defines the typed error carried from services to the HTTP
// layer. Every error has a Code that fixes its status and public message,
// optional details, and an optional machine reason stored under
// details["reason"].
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	// CodeConflict rejects a request that races or contradicts stored
	// money state, such as a payout release that is not yet eligible.
	CodeConflict Code = "CONFLICT"
	// CodeStateConflict rejects a lifecycle transition the current status
	// does not allow.
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// ReasonRetry marks errors the caller may resolve by retrying the request.
const ReasonRetry = "retry"

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed gates whether Details reach the response body.
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "request failed validation", true},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, false, "actor may not perform this action", false},
	CodeNotFound:      {http.StatusNotFound, false, "record not found", false},
	CodeConflict:      {http.StatusConflict, false, "request conflicts with current records", true},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "transition not allowed from current status", true},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused with a different request", true},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "too many attempts", true},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "backing service unavailable", true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Reason builds a typed error whose details carry a stable machine reason,
// for example "not_delivered" on a rejected payout release.
func Reason(code Code, reason, message string) *Error {
	return New(code, message).WithReason(reason)
}

// Storage classifies a persistence failure. Typed errors pass through,
// serialization losses become a retryable CodeConflict and everything else
// is a CodeDependency.
func Storage(err error, message string) *Error {
	if typed := As(err); typed != nil {
		return typed
	}
	if IsRetryableTx(err) {
		return Wrap(CodeConflict, err, "concurrent update, try again").WithReason(ReasonRetry)
	}
	return Wrap(CodeDependency, err, message)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails replaces the details wholesale.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// WithDetail sets one key on map details. Non-map details are discarded.
func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	details, ok := e.details.(map[string]any)
	if !ok {
		details = map[string]any{}
	}
	details[key] = value
	e.details = details
	return e
}

func (e *Error) WithReason(reason string) *Error {
	return e.WithDetail("reason", reason)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the first typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// ReasonOf returns the reason detail of the typed error in err's chain, or
// "" when there is none.
func ReasonOf(err error) string {
	typed := As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.details.(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
