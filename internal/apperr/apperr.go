// Package apperr defines the error taxonomy shared by every component.
//
// Callers branch on kinds with errors.Is against the exported sentinels;
// Safe turns any error into the {kind, message} pair shown to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFound"
	KindConflict            Kind = "Conflict"
	KindAlreadyClosed       Kind = "AlreadyClosed"
	KindInvalidModeration   Kind = "InvalidModeration"
	KindInvalidJobReference Kind = "InvalidJobReference"
	KindNotReady            Kind = "NotReady"
	KindNoLiveMatch         Kind = "NoLiveMatch"
	KindQuotaExceeded       Kind = "QuotaExceeded"
	KindUpstream            Kind = "UpstreamFailure"
	KindInternal            Kind = "InternalError"
)

// Sentinel errors, one per kind. Use errors.Is() to check for these.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrAlreadyClosed       = &Error{Kind: KindAlreadyClosed}
	ErrInvalidModeration   = &Error{Kind: KindInvalidModeration}
	ErrInvalidJobReference = &Error{Kind: KindInvalidJobReference}
	ErrNotReady            = &Error{Kind: KindNotReady}
	ErrNoLiveMatch         = &Error{Kind: KindNoLiveMatch}
	ErrQuotaExceeded       = &Error{Kind: KindQuotaExceeded}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is a classified error. Message is safe to show callers; Err is the
// underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error    { return newf(KindValidation, format, args...) }
func NotFound(format string, args ...any) error      { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) error      { return newf(KindConflict, format, args...) }
func AlreadyClosed(format string, args ...any) error { return newf(KindAlreadyClosed, format, args...) }
func NotReady(format string, args ...any) error      { return newf(KindNotReady, format, args...) }
func NoLiveMatch(format string, args ...any) error   { return newf(KindNoLiveMatch, format, args...) }
func QuotaExceeded(format string, args ...any) error { return newf(KindQuotaExceeded, format, args...) }

func InvalidModeration(format string, args ...any) error {
	return newf(KindInvalidModeration, format, args...)
}

func InvalidJobReference(format string, args ...any) error {
	return newf(KindInvalidJobReference, format, args...)
}

// Upstream wraps a failure of an external collaborator.
func Upstream(err error, format string, args ...any) error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps a datastore or programming failure. The cause never reaches callers.
func Internal(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public is the structured error returned to callers.
type Public struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Safe returns the caller-facing form of err. Internal and unclassified
// errors collapse to a generic message.
func Safe(err error) Public {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return Public{Kind: KindInternal, Message: "internal error"}
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Kind == KindUpstream && e.Err != nil {
		// Upstream causes are HTTP statuses or API messages, not driver internals.
		msg = msg + ": " + e.Err.Error()
	}
	return Public{Kind: e.Kind, Message: msg}
}
