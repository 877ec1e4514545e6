// Package common defines the sentinel errors and error kinds shared by the
// payroll services, repositories and transports. Callers match them with
// errors.Is / errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmployee = errors.New("employee already in pay period")

	// Lifecycle errors.
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPeriodNotEditable = errors.New("pay period is not editable")
	ErrPeriodCommitted   = errors.New("pay period is committed")

	// Input errors.
	ErrInvalidInput              = errors.New("invalid input")
	ErrInvalidDates              = errors.New("invalid pay period dates")
	ErrUnsupportedEmploymentType = errors.New("unsupported employment type")
	ErrNoPayrollItems            = errors.New("pay period has no payroll items")
	ErrYtdResetNotConfirmed      = errors.New("ytd reset requires explicit confirmation")

	// Configuration errors.
	ErrTaxRateNotFound           = errors.New("no tax rate configuration for year")
	ErrInvalidTaxConfig          = errors.New("invalid tax rate configuration")
	ErrSyncEndpointNotConfigured = errors.New("tax sync endpoint is not configured")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")

	ErrInternal = errors.New("internal error")
)

// ValidationError is surfaced to the caller as-is and is never retried.
type ValidationError struct {
	Err error
	Msg string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(err error, msg string) error {
	return &ValidationError{Err: err, Msg: msg}
}

// ConfigurationError means the operation cannot succeed until an operator
// changes configuration. Jobs failing with it are discarded, not retried.
type ConfigurationError struct {
	Err error
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(err error, msg string) error {
	return &ConfigurationError{Err: err, Msg: msg}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
