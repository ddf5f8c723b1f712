package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"restaurant-api/internal/service"
	"restaurant-api/internal/util"
)

type OfferHandler struct {
	responder
	offers *service.OfferService
}

func NewOfferHandler(offers *service.OfferService, logger *zap.Logger) *OfferHandler {
	return &OfferHandler{responder: responder{logger: logger}, offers: offers}
}

type applyOfferRequest struct {
	Phone      string  `json:"phone"`
	OrderTotal float64 `json:"orderTotal"`
}

// CustomerOffers lists offers for the phone in the path. active_only defaults to true.
func (h *OfferHandler) CustomerOffers(w http.ResponseWriter, r *http.Request) {
	activeOnly := queryBool(r, "active_only", true)

	res, err := h.offers.CustomerOffers(r.Context(), chi.URLParam(r, "phone"), activeOnly)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to load offers")
		return
	}

	if id, ok := IdentityFrom(r.Context()); ok && id.Phone != res.Profile.Phone {
		h.logger.Info("Offers requested for a different phone than the session",
			util.String("session_phone", util.MaskPhone(id.Phone)),
			util.String("phone", util.MaskPhone(res.Profile.Phone)),
		)
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(res, "Offers loaded"))
}

// AllOffers lists the whole catalog. include_expired defaults to false.
func (h *OfferHandler) AllOffers(w http.ResponseWriter, r *http.Request) {
	role, _ := RoleFrom(r.Context())
	h.logger.Debug("Catalog listing requested", util.String("role", string(role)))

	res, err := h.offers.AllOffers(r.Context(), queryBool(r, "include_expired", false))
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to load offers")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(res, "All offers loaded"))
}

// ApplyOffer prices an order. An authenticated caller may omit the phone.
func (h *OfferHandler) ApplyOffer(w http.ResponseWriter, r *http.Request) {
	var req applyOfferRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if id, ok := IdentityFrom(r.Context()); ok && req.Phone == "" {
		req.Phone = id.Phone
	}

	res, err := h.offers.ApplyOffer(r.Context(), chi.URLParam(r, "offerID"), req.Phone, req.OrderTotal)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to apply offer")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(res, "Offer applied"))
}

func queryBool(r *http.Request, name string, fallback bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
