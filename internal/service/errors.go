package service

import "errors"

// ErrInvalidInput marks requests rejected before any state is touched.
// Callers wrap it with the specific problem.
var ErrInvalidInput = errors.New("invalid input")
