package otp

import (
	"context"
	"sync"
)

// Registry tracks which phones have completed verification at least once.
type Registry interface {
	IsRegistered(ctx context.Context, phone string) (bool, error)
	// MarkRegistered records phone and reports whether it was unknown before the call.
	MarkRegistered(ctx context.Context, phone string) (wasNew bool, err error)
}

// SeedPhones are the demo customers known before the first verification.
var SeedPhones = []string{
	"+905501234567",
	"+905509876543",
	"+905507654321",
	"+905503456789",
	"+905502345678",
}

type MemoryRegistry struct {
	mu     sync.RWMutex
	phones map[string]struct{}
}

func NewMemoryRegistry(seed ...string) *MemoryRegistry {
	r := &MemoryRegistry{phones: make(map[string]struct{}, len(seed))}
	for _, p := range seed {
		r.phones[p] = struct{}{}
	}
	return r
}

func (r *MemoryRegistry) IsRegistered(_ context.Context, phone string) (bool, error) {
	r.mu.RLock()
	_, ok := r.phones[phone]
	r.mu.RUnlock()
	return ok, nil
}

func (r *MemoryRegistry) MarkRegistered(_ context.Context, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.phones[phone]; ok {
		return false, nil
	}
	r.phones[phone] = struct{}{}
	return true, nil
}
