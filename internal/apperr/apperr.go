// Package apperr defines the error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Each kind has a stable public message.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindNotAuthorized      Kind = "not_authorized"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidSender      Kind = "invalid_sender"
	KindEmptyBody          Kind = "empty_body"
	KindInvalidInquiryType Kind = "invalid_inquiry_type"
	KindInvalidTransition  Kind = "invalid_transition"
	KindDuplicatePending   Kind = "duplicate_pending"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

var publicMessages = map[Kind]string{
	KindUnauthenticated:    "Authentication required",
	KindNotAuthorized:      "You are not allowed to perform this action",
	KindInvalidInput:       "Invalid input",
	KindInvalidSender:      "Sender is not a participant of this conversation",
	KindEmptyBody:          "Message body cannot be empty",
	KindInvalidInquiryType: "Unknown inquiry type",
	KindInvalidTransition:  "This status change is not allowed",
	KindDuplicatePending:   "A verification request is already pending",
	KindStoreUnavailable:   "Service temporarily unavailable, please retry",
	KindNotFound:           "Not found",
	KindInternal:           "Internal error",
}

// Error is a classified failure. Message may add detail for validation kinds;
// Err keeps the underlying cause for logs and is never shown to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = PublicMessage(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.NotFound) works
// against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	Unauthenticated    = &Error{Kind: KindUnauthenticated}
	NotAuthorized      = &Error{Kind: KindNotAuthorized}
	InvalidInput       = &Error{Kind: KindInvalidInput}
	InvalidSender      = &Error{Kind: KindInvalidSender}
	EmptyBody          = &Error{Kind: KindEmptyBody}
	InvalidInquiryType = &Error{Kind: KindInvalidInquiryType}
	InvalidTransition  = &Error{Kind: KindInvalidTransition}
	DuplicatePending   = &Error{Kind: KindDuplicatePending}
	StoreUnavailable   = &Error{Kind: KindStoreUnavailable}
	NotFound           = &Error{Kind: KindNotFound}
)

// New builds an error of kind with a caller-facing detail message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Category folds the input sub-kinds into KindInvalidInput.
func Category(kind Kind) Kind {
	switch kind {
	case KindInvalidSender, KindEmptyBody, KindInvalidInquiryType:
		return KindInvalidInput
	}
	return kind
}

// Retryable reports whether a caller may retry the failed request.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

// PublicMessage is the stable message shown for kind.
func PublicMessage(kind Kind) string {
	if m, ok := publicMessages[kind]; ok {
		return m
	}
	return publicMessages[KindInternal]
}

// Describe returns the message a caller should see for err. Validation kinds keep
// their detail; everything else uses the stable message so store internals never leak.
func Describe(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return PublicMessage(KindInternal)
	}
	if Category(e.Kind) == KindInvalidInput && e.Message != "" {
		return e.Message
	}
	return PublicMessage(e.Kind)
}

// HTTPStatus maps a kind to the status used by the REST endpoints.
func HTTPStatus(kind Kind) int {
	switch Category(kind) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindInvalidInput, KindInvalidTransition:
		return http.StatusBadRequest
	case KindDuplicatePending:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
