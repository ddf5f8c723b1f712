package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/service"
	"restaurant-api/internal/session"
	"restaurant-api/internal/util"
)

const (
	actionSendOTP   = "send_otp"
	actionVerifyOTP = "verify_otp"
)

type AuthHandler struct {
	responder
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{responder: responder{logger: logger}, auth: auth}
}

type verifyPhoneRequest struct {
	Phone  string `json:"phone"`
	Action string `json:"action"`
	OTP    string `json:"otp"`
}

type refreshTokenRequest struct {
	Token string `json:"token"`
}

// VerifyPhone sends or checks a code depending on action (default send_otp).
func (h *AuthHandler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req verifyPhoneRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	switch req.Action {
	case "", actionSendOTP:
		res, err := h.auth.SendOTP(r.Context(), req.Phone)
		if err != nil {
			h.respondWithError(w, getStatusCode(err), publicError(err), "Failed to send verification code")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(res, "Verification code sent"))

	case actionVerifyOTP:
		res, err := h.auth.VerifyOTP(r.Context(), req.Phone, req.OTP)
		if err != nil {
			h.respondWithError(w, getStatusCode(err), publicError(err), "Verification failed")
			return
		}
		h.logger.Debug("Verification succeeded", util.String("phone", util.MaskPhone(res.Phone)))
		h.respondWithJSON(w, http.StatusOK, successResponse(res, "Phone verified"))

	default:
		err := fmt.Errorf("%w: action must be %s or %s", service.ErrInvalidInput, actionSendOTP, actionVerifyOTP)
		h.respondWithError(w, http.StatusBadRequest, err, "Unknown action")
	}
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	res, err := h.auth.RefreshToken(r.Context(), req.Token)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), publicError(err), "Failed to refresh token")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(res, "Token refreshed"))
}

type sessionResponse struct {
	Phone     string    `json:"phone"`
	TokenID   string    `json:"tokenId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session describes the caller's bearer token.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, session.ErrInvalidCredential, "Unauthorized")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(sessionResponse{
		Phone:     id.Phone,
		TokenID:   id.TokenID,
		ExpiresAt: id.ExpiresAt,
	}, "Session is valid"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: request body too large", service.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON", service.ErrInvalidInput)
	}
	return nil
}
