package errs

import "fmt"

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

// UnauthenticatedError means the request carried no valid Supabase session.
type UnauthenticatedError struct {
	ErrorMessage
}

// ProviderNotConfiguredError means the aggregation provider credentials are
// missing from this deployment.
type ProviderNotConfiguredError struct {
	ErrorMessage
	Provider string
}

// DatabaseError wraps a storage failure with the operation that failed.
type DatabaseError struct {
	ErrorMessage
	Operation string
	Err       error
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func (e *DatabaseError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// ExternalServiceError wraps a failed call to a third party. Code carries the
// provider's own error code when it returned one.
type ExternalServiceError struct {
	ErrorMessage
	Service   string
	Code      string
	Transient bool
	Err       error
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Service, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

type EncryptionError struct {
	ErrorMessage
	Err error
}

func (e *EncryptionError) Unwrap() error { return e.Err }

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewUnauthenticatedError() *UnauthenticatedError {
	return &UnauthenticatedError{
		ErrorMessage: ErrorMessage{Message: "Unauthorized"},
	}
}

func NewProviderNotConfiguredError(provider string) *ProviderNotConfiguredError {
	return &ProviderNotConfiguredError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s is not configured.", provider)},
		Provider:     provider,
	}
}

func NewDatabaseError(operation, message string, err error) *DatabaseError {
	return &DatabaseError{
		ErrorMessage: ErrorMessage{Message: message},
		Operation:    operation,
		Err:          err,
	}
}

func NewExternalServiceError(service, code, message string, transient bool, err error) *ExternalServiceError {
	return &ExternalServiceError{
		ErrorMessage: ErrorMessage{Message: message},
		Service:      service,
		Code:         code,
		Transient:    transient,
		Err:          err,
	}
}

func NewEncryptionError(message string, err error) *EncryptionError {
	return &EncryptionError{
		ErrorMessage: ErrorMessage{Message: message},
		Err:          err,
	}
}
