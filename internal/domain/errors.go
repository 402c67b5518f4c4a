package domain

import "errors"

// Sentinel errors shared across the storage and service layers. Callers
// branch on these with errors.Is; everything else is wrapped context.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid amount")
)
