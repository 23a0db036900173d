package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrSourceTypeNotFound = errors.New("source type not found")
	ErrRecordNotFound     = errors.New("record not found")
)

// LockError means another invocation holds the source; retry later.
type LockError struct {
	SourceID string
	Cause    error
}

func (e *LockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s is locked: %v", e.SourceID, e.Cause)
	}
	return fmt.Sprintf("source %s is locked by another process", e.SourceID)
}

func (e *LockError) Unwrap() error { return e.Cause }

// FetchError is a failure to retrieve a source's content.
type FetchError struct {
	SourceID   string
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	msg := "fetch source " + e.SourceID
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError means the fetched content is malformed.
type ParseError struct {
	SourceID string
	Parser   string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse source %s with %s: %v", e.SourceID, e.Parser, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError means a constructed record fails domain rules.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// PersistenceError means the record store rejected an operation.
type PersistenceError struct {
	Op       string
	RecordID string
	Cause    error
}

func (e *PersistenceError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s record %s: %v", e.Op, e.RecordID, e.Cause)
	}
	return fmt.Sprintf("%s record: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
