// Package businessflow contains the core business logic and use cases of the tracking pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Ingestion errors
	ErrInvalidEvent        = errors.New("event name is required")
	ErrPersistenceFailure  = errors.New("event could not be persisted")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrSourceDisabled      = errors.New("source is disabled")
	ErrSourceNotWebhook    = errors.New("source does not accept webhooks")
	ErrUnsupportedPlatform = errors.New("unsupported destination platform")

	// Dataset-related errors
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrDatasetAccessDenied = errors.New("dataset access denied")
	ErrSourceNotFound      = errors.New("source not found")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrDeliveryNotFound    = errors.New("delivery not found")
	ErrEventNotFound       = errors.New("event not found")

	// Destination errors
	ErrInvalidDestinationConfig = errors.New("invalid destination config")
	ErrDestinationDisabled      = errors.New("destination is disabled")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsInvalidEvent(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}

func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsSourceDisabled(err error) bool {
	return errors.Is(err, ErrSourceDisabled)
}

func IsSourceNotWebhook(err error) bool {
	return errors.Is(err, ErrSourceNotWebhook)
}

func IsUnsupportedPlatform(err error) bool {
	return errors.Is(err, ErrUnsupportedPlatform)
}

func IsDatasetNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound)
}

func IsDatasetAccessDenied(err error) bool {
	return errors.Is(err, ErrDatasetAccessDenied)
}

func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}

func IsDestinationNotFound(err error) bool {
	return errors.Is(err, ErrDestinationNotFound)
}

func IsDeliveryNotFound(err error) bool {
	return errors.Is(err, ErrDeliveryNotFound)
}

func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

func IsInvalidDestinationConfig(err error) bool {
	return errors.Is(err, ErrInvalidDestinationConfig)
}

func IsDestinationDisabled(err error) bool {
	return errors.Is(err, ErrDestinationDisabled)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
