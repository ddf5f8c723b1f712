// Package session issues and validates the signed bearer credentials handed
// out after a successful phone verification.
package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL      = 30 * 24 * time.Hour
	DefaultAudience = "restaurant-api"
)

var ErrInvalidCredential = errors.New("invalid or expired token")

type Claims struct {
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

type Credential struct {
	Token     string    `json:"token"`
	Phone     string    `json:"phone"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer signs HS256 tokens bound to a verified phone.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	audience string
	now      func() time.Time
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret string, ttl time.Duration, audience string, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if audience == "" {
		audience = DefaultAudience
	}
	i := &Issuer{
		secret:   []byte(secret),
		ttl:      ttl,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) Issue(phone string) (Credential, error) {
	now := i.now().UTC().Truncate(time.Second)
	expires := now.Add(i.ttl)

	claims := Claims{
		Phone:    phone,
		Verified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phone,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
			Audience:  []string{i.audience},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Credential{Token: token, Phone: phone, IssuedAt: now, ExpiresAt: expires}, nil
}

// Parse validates signature, audience and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	return i.parse(parser, token)
}

// Refresh issues a new credential for the phone in token. Expired tokens are
// accepted as long as the signature and audience check out.
func (i *Issuer) Refresh(token string) (Credential, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims, err := i.parse(parser, token)
	if err != nil {
		return Credential{}, err
	}
	if !slices.Contains(claims.Audience, i.audience) {
		return Credential{}, ErrInvalidCredential
	}
	return i.Issue(claims.Phone)
}

func (i *Issuer) parse(parser *jwt.Parser, token string) (*Claims, error) {
	claims := new(Claims)
	tok, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.Phone == "" || !claims.Verified {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
