package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// GlobalBucket is the registry name of the process-wide bucket.
const GlobalBucket = "global"

// BucketSpec describes one named bucket.
type BucketSpec struct {
	Name         string
	Capacity     int64
	RefillRate   int64
	RefillPeriod time.Duration
}

// Registry owns the named buckets of one server: the global bucket and the
// per-route ones. Buckets are independent; a request gated by two of them
// consumes from each separately.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
}

// NewRegistry builds a bucket for every spec. Names must be unique and one
// of them should be GlobalBucket.
func NewRegistry(specs []BucketSpec, opts ...Option) (*Registry, error) {
	r := &Registry{buckets: make(map[string]*TokenBucket, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: bucket name is empty", ErrInvalidArgument)
		}
		if _, dup := r.buckets[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate bucket %q", ErrInvalidArgument, s.Name)
		}
		bucketOpts := append([]Option{WithName(s.Name)}, opts...)
		b, err := NewTokenBucket(s.Capacity, s.RefillRate, s.RefillPeriod, bucketOpts...)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", s.Name, err)
		}
		r.buckets[s.Name] = b
	}
	return r, nil
}

// Get returns the named bucket.
func (r *Registry) Get(name string) (*TokenBucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[name]
	return b, ok
}

// Global returns the global bucket, nil if none was configured.
func (r *Registry) Global() *TokenBucket {
	b, _ := r.Get(GlobalBucket)
	return b
}

// Names returns the bucket names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buckets))
	for n := range r.buckets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the status of every bucket ordered by name.
func (r *Registry) Snapshot() []Status {
	names := r.Names()
	out := make([]Status, 0, len(names))
	for _, n := range names {
		if b, ok := r.Get(n); ok {
			out = append(out, b.Snapshot())
		}
	}
	return out
}

// Reset refills the named bucket.
func (r *Registry) Reset(name string) error {
	b, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBucket, name)
	}
	b.Reset()
	return nil
}

// ResetAll refills every bucket.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.buckets {
		b.Reset()
	}
}
