package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Custom error types
var (
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")

	// ErrSetup is returned when the ledger or lock schema cannot be created
	ErrSetup = errors.New("setup error")

	// ErrAlreadyLocked is returned when another runner holds the migration lock
	ErrAlreadyLocked = errors.New("migration lock already held")

	// ErrMigrationFailed is returned when a migration's up or down step fails
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInconsistentGraph is returned when the association graph has violations
	ErrInconsistentGraph = errors.New("inconsistent association graph")
)

// ValidationError represents an error that occurs during input validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SetupError represents a failure to create the ledger or lock schema
type SetupError struct {
	Table            string
	PermissionDenied bool
	Cause            error
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("setup of %s failed", e.Table)
	if e.PermissionDenied {
		msg += " (insufficient privileges)"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SetupError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSetup}
	}
	return []error{ErrSetup, e.Cause}
}

// AlreadyLockedError is returned when the lock row is already set
type AlreadyLockedError struct {
	Table string
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("migration lock in %s is held by another runner", e.Table)
}

func (e *AlreadyLockedError) Unwrap() error {
	return ErrAlreadyLocked
}

// MigrationExecutionError carries the name of the migration that failed and why
type MigrationExecutionError struct {
	Name      string
	Direction string
	Cause     error
}

func (e *MigrationExecutionError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Name, e.Direction, e.Cause)
}

func (e *MigrationExecutionError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Cause}
}

// ConsistencyError wraps the violations reported by the association checker
type ConsistencyError struct {
	Messages []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%d association violation(s): %s", len(e.Messages), strings.Join(e.Messages, "; "))
}

func (e *ConsistencyError) Unwrap() error {
	return ErrInconsistentGraph
}

// Error wrapping functions

// WrapValidationError wraps an error as a validation error
func WrapValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapSetupError wraps an error as a setup error for the given table
func WrapSetupError(table string, permissionDenied bool, cause error) error {
	return &SetupError{
		Table:            table,
		PermissionDenied: permissionDenied,
		Cause:            cause,
	}
}

// WrapMigrationError wraps an error as a migration execution error
func WrapMigrationError(name, direction string, cause error) error {
	return &MigrationExecutionError{
		Name:      name,
		Direction: direction,
		Cause:     cause,
	}
}

// Error checking functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsSetupError checks if an error is a setup error
func IsSetupError(err error) bool {
	return errors.Is(err, ErrSetup)
}

// IsAlreadyLocked checks if an error means the lock is held elsewhere
func IsAlreadyLocked(err error) bool {
	return errors.Is(err, ErrAlreadyLocked)
}

// IsMigrationError checks if an error is a migration execution error
func IsMigrationError(err error) bool {
	return errors.Is(err, ErrMigrationFailed)
}

// IsConsistencyError checks if an error reports association violations
func IsConsistencyError(err error) bool {
	return errors.Is(err, ErrInconsistentGraph)
}

// Helper function to create a validation error for required fields
func RequiredFieldError(field string) error {
	return WrapValidationError(field, "field is required")
}

// Helper function to create a validation error for invalid field values
func InvalidFieldError(field, reason string) error {
	return WrapValidationError(field, reason)
}
