package domain

import (
	"errors"
	"fmt"
)

// Kind категория ошибки; каждая ошибка сервиса относится ровно к одной категории
type Kind string

const (
	KindAuthentication     Kind = "AuthenticationError"
	KindInvalidCredentials Kind = "InvalidCredentialsError"
	KindAuthorization      Kind = "AuthorizationError"
	KindInvalidInput       Kind = "InvalidInputError"
	KindDuplicateName      Kind = "DuplicateNameError"
	KindInsufficientStock  Kind = "InsufficientStockError"
	KindLastUser           Kind = "LastUserError"
	KindNoChanges          Kind = "NoChangesError"
	KindNotFound           Kind = "NotFoundError"
	KindPersistence        Kind = "PersistenceError"
)

// Error типизированная ошибка с сообщением для отображения пользователю
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAuthentication     = &Error{Kind: KindAuthentication, Message: "authentication failed"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials payload"}
	ErrAuthorization      = &Error{Kind: KindAuthorization, Message: "operation not permitted"}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrDuplicateName      = &Error{Kind: KindDuplicateName, Message: "name already in use"}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrLastUser           = &Error{Kind: KindLastUser, Message: "at least one active user must remain"}
	ErrNoChanges          = &Error{Kind: KindNoChanges, Message: "no changes to apply"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrPersistence        = &Error{Kind: KindPersistence, Message: "storage failure"}
)

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: "storage failure during " + op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-displayable message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
