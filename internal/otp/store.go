package otp

import (
	"context"
	"sync"
	"time"

	"restaurant-api/internal/bucketing"
)

// Record is the pending verification for one phone.
type Record struct {
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// Store holds at most one Record per canonical phone.
//
// Implementations must make IncrementAttempts an atomic read-modify-write;
// Get and IncrementAttempts return ErrNoPendingCode for unknown phones and
// Delete is idempotent.
type Store interface {
	Save(ctx context.Context, phone string, rec Record) error
	Get(ctx context.Context, phone string) (Record, error)
	IncrementAttempts(ctx context.Context, phone string) (Record, error)
	Delete(ctx context.Context, phone string) error
}

// Retention is how long a Store keeps a record after it was created. It
// outlives expiry so a late verify still reports an expired code rather than a
// missing one.
func Retention(expiry time.Duration) time.Duration {
	return 2 * expiry
}

type shard struct {
	mu      sync.Mutex
	records map[string]Record
}

// MemoryStore is a process-local Store sharded by phone.
type MemoryStore struct {
	buckets *bucketing.Manager
	shards  []*shard
}

func NewMemoryStore(shards int) *MemoryStore {
	m := bucketing.NewManager(shards)
	s := &MemoryStore{
		buckets: m,
		shards:  make([]*shard, m.Buckets()),
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]Record)}
	}
	return s
}

func (s *MemoryStore) shardFor(phone string) *shard {
	return s.shards[s.buckets.Bucket(phone)]
}

func (s *MemoryStore) Save(_ context.Context, phone string, rec Record) error {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	sh.records[phone] = rec
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, phone string) (Record, error) {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[phone]
	if !ok {
		return Record{}, ErrNoPendingCode
	}
	return rec, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, phone string) (Record, error) {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[phone]
	if !ok {
		return Record{}, ErrNoPendingCode
	}
	rec.Attempts++
	sh.records[phone] = rec
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, phone string) error {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	delete(sh.records, phone)
	sh.mu.Unlock()
	return nil
}

// PurgeCreatedBefore drops records created before cutoff and returns how many
// were removed. Abandoned codes would otherwise stay in memory forever.
func (s *MemoryStore) PurgeCreatedBefore(cutoff time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for phone, rec := range sh.records {
			if rec.CreatedAt.Before(cutoff) {
				delete(sh.records, phone)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of pending records.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}
