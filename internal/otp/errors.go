package otp

import "errors"

var (
	ErrNoPendingCode    = errors.New("no verification code was sent to this phone")
	ErrCodeExpired      = errors.New("verification code expired, request a new one")
	ErrAttemptsExceeded = errors.New("too many verification attempts, request a new code")
	ErrCodeMismatch     = errors.New("verification code is incorrect")
	ErrDeliveryFailed   = errors.New("failed to deliver verification code")
)
