package domain

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates operation failures for callers and the transport
// layer. Every operation resolves to either a typed success or one of these.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotFound            ErrorKind = "not_found"
	KindUniqueConflict      ErrorKind = "unique_conflict"
	KindReferentialConflict ErrorKind = "referential_conflict"
	KindStateConflict       ErrorKind = "state_conflict"
	KindStorage             ErrorKind = "storage"
)

// Error carries the failure kind plus enough context (entity kind, field) for
// the transport layer to render a response.
type Error struct {
	Kind    ErrorKind
	Entity  string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid reports a missing, mistyped or constraint-violating input field.
func Invalid(field, message string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: message}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: entity + " not found"}
}

// UniqueConflict reports a violated uniqueness constraint.
func UniqueConflict(entity, field string) *Error {
	return &Error{Kind: KindUniqueConflict, Entity: entity, Field: field, Message: field + " already registered"}
}

// ReferentialConflict reports a delete blocked by referencing dependents.
func ReferentialConflict(entity, message string) *Error {
	return &Error{Kind: KindReferentialConflict, Entity: entity, Message: message}
}

// StateConflict reports a rejected status transition.
func StateConflict(entity, message string) *Error {
	return &Error{Kind: KindStateConflict, Entity: entity, Message: message}
}

// StorageFailure wraps an unexpected entity store error.
func StorageFailure(err error) *Error {
	return &Error{Kind: KindStorage, Message: "entity store failure", Err: err}
}

// KindOf extracts the failure kind, defaulting unknown errors to storage.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
