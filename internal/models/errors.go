package models

import "errors"

var (
	// ErrInvalidSymbol is returned when a symbol is empty or malformed
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidPrice is returned when a price is zero or negative
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidTimestamp is returned when a timestamp is missing
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidJobID is returned when a job id is empty
	ErrInvalidJobID = errors.New("invalid job id")

	// ErrInvalidJobStatus is returned when a job status is empty or unknown
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidTransition is returned when a status transition violates the
	// job state machine
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrJobNotFound is returned when a job id does not exist in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidAlertKind is returned when an alert kind is unknown
	ErrInvalidAlertKind = errors.New("invalid alert kind")

	// ErrScoreOutOfRange is returned when a risk score falls outside [0, 100]
	ErrScoreOutOfRange = errors.New("risk score out of range")
)
