package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/phone"
	"restaurant-api/internal/ratelimit"
	"restaurant-api/internal/session"
	"restaurant-api/internal/util"
)

type ctxKey int

const (
	roleKey ctxKey = iota
	identityKey
)

const maxBodyBytes = 1 << 20

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the verified caller behind a bearer token.
type Identity struct {
	Phone     string
	TokenID   string
	ExpiresAt time.Time
}

// TokenParser is implemented by *session.Issuer.
type TokenParser interface {
	Parse(token string) (*session.Claims, error)
}

// RoleFrom returns the role granted by the API key middleware.
func RoleFrom(ctx context.Context) (Role, bool) {
	r, ok := ctx.Value(roleKey).(Role)
	return r, ok
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// APIKey accepts the X-API-Key header or the api_key query parameter.
func APIKey(userKey, adminKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}

			var role Role
			switch {
			case key == "":
				h.respondWithError(w, http.StatusUnauthorized, errors.New("api key required"), "Unauthorized")
				return
			case adminKey != "" && key == adminKey:
				role = RoleAdmin
			case userKey != "" && key == userKey:
				role = RoleUser
			default:
				h.respondWithError(w, http.StatusUnauthorized, errors.New("invalid api key"), "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, role)))
		})
	}
}

// OptionalAuth attaches an Identity when a valid bearer token is present.
// Missing or bad tokens leave the request anonymous.
func OptionalAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := identityFromRequest(parser, r); ok {
				r = r.WithContext(context.WithValue(r.Context(), identityKey, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(parser TokenParser, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identityFromRequest(parser, r)
			if !ok {
				h.respondWithError(w, http.StatusUnauthorized, session.ErrInvalidCredential, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

func identityFromRequest(parser TokenParser, r *http.Request) (Identity, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return Identity{}, false
	}
	claims, err := parser.Parse(token)
	if err != nil {
		return Identity{}, false
	}
	id := Identity{Phone: claims.Phone, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, true
}

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys by the address chi's RealIP middleware left in RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPAndPhone keys by client address plus the normalized phone in the
// JSON body, so formatting variants of one number share a bucket. The body is
// restored for the next handler.
func ClientIPAndPhone(r *http.Request) string {
	number := "unknown"
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err == nil {
			var peek struct {
				Phone string `json:"phone"`
			}
			if json.Unmarshal(body, &peek) == nil && peek.Phone != "" {
				number = phone.Normalize(peek.Phone)
			}
		}
	}
	return ClientIP(r) + ":" + number
}

// RateLimit allows limit requests per key per window. Limiter errors let the
// request through.
func RateLimit(limiter ratelimit.Limiter, name string, limit int, window time.Duration, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), name+":"+key(r), limit, window)
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing request",
					util.String("limiter", name),
					util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.ResetAfter.Round(time.Second)/time.Second)))
				h.respondWithError(w, http.StatusTooManyRequests, errRateLimited, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
