package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"restaurant-api/internal/customer"
	"restaurant-api/internal/offers"
	"restaurant-api/internal/util"
)

const createOffersTable = `
CREATE TABLE IF NOT EXISTS offers (
	offer_id text PRIMARY KEY,
	title text,
	description text,
	discount_percentage double,
	min_order_amount double,
	max_discount_amount double,
	valid_until timestamp,
	image_url text,
	offer_type text,
	is_active boolean,
	customer_tiers list<text>
)`

const offerColumns = `offer_id, title, description, discount_percentage, min_order_amount,
	max_discount_amount, valid_until, image_url, offer_type, is_active, customer_tiers`

// OfferRepository is an offers.Catalog stored in the offers table.
type OfferRepository struct {
	client *ScyllaClient
}

func NewOfferRepository(client *ScyllaClient) *OfferRepository {
	return &OfferRepository{client: client}
}

// EnsureSchema creates the offers table when it does not exist.
func (r *OfferRepository) EnsureSchema(ctx context.Context) error {
	if err := r.client.Query(ctx, createOffersTable).Exec(); err != nil {
		return fmt.Errorf("failed to create offers table: %w", err)
	}
	return nil
}

func (r *OfferRepository) List(ctx context.Context) ([]offers.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := r.client.Query(ctx, `SELECT `+offerColumns+` FROM offers`).Iter()

	var out []offers.Offer
	for {
		var row offerRow
		if !iter.Scan(row.dest()...) {
			break
		}
		o, err := row.toOffer()
		if err != nil {
			util.Warn("Skipping malformed offer row", util.String("offer_id", row.id), util.ErrorField(err))
			continue
		}
		out = append(out, o)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return out, nil
}

func (r *OfferRepository) Get(ctx context.Context, id string) (offers.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var row offerRow
	err := r.client.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE offer_id = ?`, id).Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return offers.Offer{}, offers.ErrOfferNotFound
	}
	if err != nil {
		return offers.Offer{}, fmt.Errorf("failed to get offer %s: %w", id, err)
	}
	return row.toOffer()
}

func (r *OfferRepository) Upsert(ctx context.Context, o offers.Offer) error {
	tiers := make([]string, len(o.EligibleTiers))
	for i, t := range o.EligibleTiers {
		tiers[i] = t.String()
	}

	q := r.client.Query(ctx, `INSERT INTO offers (`+offerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Title, o.Description, o.DiscountPercentage, o.MinOrderAmount,
		o.MaxDiscountAmount, o.ValidUntil, o.ImageURL, string(o.OfferType), o.IsActive, tiers)
	if err := r.client.ExecuteWithRetry(ctx, q, 2); err != nil {
		return fmt.Errorf("failed to upsert offer %s: %w", o.ID, err)
	}
	return nil
}

// SeedIfEmpty writes seed when the table has no rows.
func (r *OfferRepository) SeedIfEmpty(ctx context.Context, seed []offers.Offer) error {
	existing, err := r.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, o := range seed {
		if err := r.Upsert(ctx, o); err != nil {
			return err
		}
	}
	util.Info("Seeded offers table", util.Int("count", len(seed)))
	return nil
}

type offerRow struct {
	id, title, description string
	pct, minOrder, maxDisc float64
	validUntil             time.Time
	imageURL, offerType    string
	active                 bool
	tiers                  []string
}

func (r *offerRow) dest() []interface{} {
	return []interface{}{
		&r.id, &r.title, &r.description, &r.pct, &r.minOrder,
		&r.maxDisc, &r.validUntil, &r.imageURL, &r.offerType, &r.active, &r.tiers,
	}
}

func (r *offerRow) toOffer() (offers.Offer, error) {
	tiers := make([]customer.Tier, 0, len(r.tiers))
	for _, name := range r.tiers {
		t, err := customer.ParseTier(name)
		if err != nil {
			return offers.Offer{}, err
		}
		tiers = append(tiers, t)
	}
	return offers.Offer{
		ID:                 r.id,
		Title:              r.title,
		Description:        r.description,
		DiscountPercentage: r.pct,
		MinOrderAmount:     r.minOrder,
		MaxDiscountAmount:  r.maxDisc,
		ValidUntil:         r.validUntil.UTC(),
		ImageURL:           r.imageURL,
		OfferType:          offers.OfferType(r.offerType),
		IsActive:           r.active,
		EligibleTiers:      tiers,
	}, nil
}
