package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrNoInputsAvailable  = errors.New("no inputs available")
	ErrInputNotFound      = errors.New("input not found")
	ErrClientNotFound     = errors.New("client not found")
	ErrOwnershipMismatch  = errors.New("input is not assigned to this client")
	ErrInputNotLeased     = errors.New("input is not currently leased")
	ErrMalformedOutput    = errors.New("malformed output")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError carries a caller-facing message and matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure; it matches ErrStorageUnavailable and the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
