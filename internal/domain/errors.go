package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConnection      = errors.New("venue connection failed")
	ErrNotConnected    = errors.New("venue not connected")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrOrderRejected   = errors.New("order rejected")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrRiskViolation   = errors.New("risk violation")
	ErrConfig          = errors.New("configuration error")
	ErrLockHeld        = errors.New("lock already held")
)
