package module

import "errors"

// Error defines model for Error.
type Error struct {
	// Code Error code
	Code int32 `json:"code"`

	// Message Error message
	Message string `json:"message"`
}

var (
	ErrQuotaExceeded     = errors.New("api key quota exceeded")
	ErrInvalidName       = errors.New("name is empty")
	ErrUnknownModel      = errors.New("unknown model")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownRequest    = errors.New("unknown request")
	ErrUnknownKey        = errors.New("unknown api key")
	ErrInvalidListing    = errors.New("invalid model listing")
	ErrDuplicateListing  = errors.New("model id already registered")
	ErrProviderNotFound  = errors.New("provider not found")
	ErrInvalidAmount     = errors.New("amount must be non-negative")
	ErrInvalidIdentity   = errors.New("identity is empty")

	// ErrMissingProcessingTime is returned wrapped together with ErrInvalidTransition
	ErrMissingProcessingTime = errors.New("processingTimeMs is required on terminal status")
)
