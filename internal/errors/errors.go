package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an auth failure at the point where it happens so callers
// never have to inspect message text.
type Kind string

const (
	KindUnknown            Kind = ""
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUserNotFound       Kind = "user_not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindValidation         Kind = "validation"
	KindForbidden          Kind = "forbidden"
	KindAccountInactive    Kind = "account_inactive"
	KindInvalidToken       Kind = "invalid_token"
	KindNetwork            Kind = "network"
	KindTimeout            Kind = "timeout"
	KindUnavailable        Kind = "unavailable"
	KindStorage            Kind = "storage"
	KindInternal           Kind = "internal"
)

// Transport reports whether the kind describes a failure to reach a backend
// rather than a decision made by one.
func (k Kind) Transport() bool {
	switch k {
	case KindNetwork, KindTimeout, KindUnavailable:
		return true
	}
	return false
}

// Common errors for the auth session lifecycle
var (
	// Authentication errors
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrUserNotFound       = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrUserExists         = &Error{Kind: KindAlreadyExists, Message: "user with this email already exists"}
	ErrAccountInactive    = &Error{Kind: KindAccountInactive, Message: "account is not active"}
	ErrAccessDenied       = &Error{Kind: KindForbidden, Message: "access denied"}

	// Token errors
	ErrInvalidRefreshToken = &Error{Kind: KindInvalidToken, Message: "invalid refresh token"}
	ErrRefreshTokenExpired = &Error{Kind: KindInvalidToken, Message: "refresh token expired"}

	// Transport errors
	ErrRequestTimeout = &Error{Kind: KindTimeout, Message: "Request timeout"}
	ErrUnavailable    = &Error{Kind: KindUnavailable, Message: "service unavailable"}

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRefreshToken   = errors.New("no refresh token")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Error is the structured failure every backend adapter returns.
type Error struct {
	Kind    Kind   // Classification used for fallthrough and user messaging
	Op      string // Operation that failed, e.g. "[restapi.Login]"
	Message string // Human readable detail, usually from the backend
	Err     error  // Underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + " " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message so the sentinels above can be
// used with errors.Is after being re-tagged with an Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || e.Message == t.Message)
}

// New creates a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithOp copies a sentinel and tags it with the failing operation.
func WithOp(sentinel *Error, op string) *Error {
	e := *sentinel
	e.Op = op
	return &e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
