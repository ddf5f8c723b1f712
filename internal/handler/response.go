package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/offers"
	"restaurant-api/internal/otp"
	"restaurant-api/internal/service"
	"restaurant-api/internal/session"
	"restaurant-api/internal/util"
)

var errRateLimited = errors.New("too many requests, try again later")

// Response is the envelope every endpoint returns.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success:   false,
		Error:     err.Error(),
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError hides the cause of 5xx errors from the client.
func (h responder) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
		if statusCode == http.StatusInternalServerError {
			err = errors.New("internal server error")
		}
	} else {
		h.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
	}
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, otp.ErrNoPendingCode),
		errors.Is(err, otp.ErrCodeExpired),
		errors.Is(err, otp.ErrAttemptsExceeded),
		errors.Is(err, otp.ErrCodeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, otp.ErrDeliveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, offers.ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, offers.ErrOfferExpired),
		errors.Is(err, offers.ErrOfferInactive),
		errors.Is(err, offers.ErrMinimumNotMet):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicError strips the internal cause from errors whose sentinel is
// meaningful on its own.
func publicError(err error) error {
	for _, sentinel := range []error{otp.ErrDeliveryFailed, session.ErrInvalidCredential} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
