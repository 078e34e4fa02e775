package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStorageFailure matches every *StorageError.
	ErrStorageFailure = errors.New("storage failure")
	// ErrBusy is returned by Manager.Advance while a previous transition of the
	// same session is still running.
	ErrBusy = errors.New("session busy")
)

// ValidationError reports input the current state rejected. The session
// stays where it was.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError reports an event the current state does not accept.
type TransitionError struct {
	State State
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s does not accept %s", e.State, e.Event)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// StorageError wraps a results store failure during Save.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("save result: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }
