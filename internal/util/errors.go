package util

import (
	"errors"
	"net/http"
)

// ErrorKind 业务错误分类
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
	KindValidation          ErrorKind = "validation_failed"
	KindConflict            ErrorKind = "conflict"
	KindAnalysisUnavailable ErrorKind = "analysis_unavailable"
	KindStorage             ErrorKind = "storage_failure"
	KindInternal            ErrorKind = "internal"
)

// AppError 携带分类、对外消息和内部原因
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同类错误视为相等；target 带消息时还需消息一致
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

func (e *AppError) StatusCode() int {
	return StatusForKind(e.Kind)
}

func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func NewNotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func NewForbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewValidation(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewConflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func NewStorageFailure(message string, err error) *AppError {
	return &AppError{Kind: KindStorage, Message: message, Err: err}
}

func NewInternal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 返回错误分类，非 AppError 一律视为 Internal
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrNotFound            = &AppError{Kind: KindNotFound}
	ErrAnalysisUnavailable = &AppError{Kind: KindAnalysisUnavailable}
	ErrStorageFailure      = &AppError{Kind: KindStorage}

	ErrUserNotFound         = NewNotFound("User not found")
	ErrEmailRegistered      = NewConflict("Email already in use")
	ErrInvalidCredentials   = &AppError{Kind: KindUnauthorized, Message: "Invalid credentials"}
	ErrChallengeNotFound    = NewNotFound("Challenge not found")
	ErrCheckInNotFound      = NewNotFound("Check-in not found")
	ErrAnalysisNotFound     = NewNotFound("Analysis not found")
	ErrPermissionDenied     = NewForbidden("Unauthorized access")
	ErrAlreadyParticipant   = NewConflict("Already participating in this challenge")
	ErrRequestInProgress    = NewConflict("Request is already being processed")
	ErrIdempotencyKeyReused = NewConflict("Idempotency key was already used for a different request")
	ErrChallengeNotActive   = NewNotFound("Challenge not found or not active")
	ErrClientNotAssociated  = NewNotFound("Client not found or not associated with you")
)
