package core

import (
	"fmt"
	"sort"
	"sync"
)

// Store holds profiles organised by core and sample.
//
// Updates are copy-on-write: Put and Replace install a private clone, so a
// *Profile obtained from Get stays valid and unchanged after the canonical
// profile is replaced.
type Store struct {
	mu    sync.RWMutex
	cores map[string]map[string]*Profile
}

// NewStore creates an empty profile store
func NewStore() *Store {
	return &Store{
		cores: make(map[string]map[string]*Profile),
	}
}

// Put adds a profile under its own key, replacing any existing one.
func (s *Store) Put(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	samples, ok := s.cores[p.Key.Core]
	if !ok {
		samples = make(map[string]*Profile)
		s.cores[p.Key.Core] = samples
	}
	samples[p.Key.Sample] = p.Clone()
	return nil
}

// Get returns the current profile for a key. The profile must not be modified.
func (s *Store) Get(key SampleKey) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.cores[key.Core][key.Sample]
	return p, ok
}

// MustGet returns the profile for a key or an error wrapping ErrNotFound.
func (s *Store) MustGet(key SampleKey) (*Profile, error) {
	p, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", key, ErrNotFound)
	}
	return p, nil
}

// Replace swaps the profile stored under key for a clone of next and returns
// the previous snapshot. The key must already exist.
func (s *Store) Replace(key SampleKey, next *Profile) (*Profile, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.cores[key.Core][key.Sample]
	if !ok {
		return nil, fmt.Errorf("replace %s: %w", key, ErrNotFound)
	}
	c := next.Clone()
	c.Key = key
	s.cores[key.Core][key.Sample] = c
	return old, nil
}

// Cores lists the core names in sorted order.
func (s *Store) Cores() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.cores))
	for name := range s.cores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Samples lists the sample ids of a core in sorted order.
func (s *Store) Samples(core string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.cores[core]
	ids := make([]string, 0, len(samples))
	for id := range samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Keys lists every key in the store, ordered by core then sample.
func (s *Store) Keys() []SampleKey {
	var keys []SampleKey
	for _, c := range s.Cores() {
		for _, id := range s.Samples(c) {
			keys = append(keys, SampleKey{Core: c, Sample: id})
		}
	}
	return keys
}

// Len returns the total number of profiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, samples := range s.cores {
		n += len(samples)
	}
	return n
}

// Snapshot returns a new store holding the same profile snapshots. Later
// updates to either store do not affect the other.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewStore()
	for c, samples := range s.cores {
		m := make(map[string]*Profile, len(samples))
		for id, p := range samples {
			m[id] = p
		}
		out.cores[c] = m
	}
	return out
}
