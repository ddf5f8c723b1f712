package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager maps keys onto a fixed number of buckets using murmur3.
type Manager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewManager(buckets int) *Manager {
	if buckets < 1 {
		buckets = 1
	}
	m := &Manager{buckets: buckets}

	// Create pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// Bucket returns the stable bucket (0 to Buckets()-1) for key.
func (m *Manager) Bucket(key string) int {
	return int(m.hash(key) % uint64(m.buckets))
}

func (m *Manager) Buckets() int {
	return m.buckets
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

// StripedMutex serializes work per key while bounding the number of mutexes.
// Two keys may share a stripe; a key never spans two.
type StripedMutex struct {
	manager *Manager
	stripes []sync.Mutex
}

func NewStripedMutex(stripes int) *StripedMutex {
	m := NewManager(stripes)
	return &StripedMutex{
		manager: m,
		stripes: make([]sync.Mutex, m.Buckets()),
	}
}

// Lock acquires the stripe owning key and returns its unlock function.
func (s *StripedMutex) Lock(key string) (unlock func()) {
	mu := &s.stripes[s.manager.Bucket(key)]
	mu.Lock()
	return mu.Unlock
}
