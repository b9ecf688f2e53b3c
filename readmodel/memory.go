package readmodel

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ripkitten-co/giftcard"
)

// MemoryStore is an in-process Repository. Rows live in a map with a sorted
// id index so prefix queries are range scans.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Summary
	ids  []string

	locks sync.Map // id -> *sync.Mutex
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Summary)}
}

var _ Repository = (*MemoryStore)(nil)

func (m *MemoryStore) Put(_ context.Context, s Summary) error {
	if s.Version == 0 {
		s.Version = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[s.ID]; ok {
		return fmt.Errorf("memory store: put %s: %w", s.ID, giftcard.ErrAlreadyExists)
	}
	m.rows[s.ID] = s
	i, _ := slices.BinarySearch(m.ids, s.ID)
	m.ids = slices.Insert(m.ids, i, s.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.rows[id]
	if !ok {
		return Summary{}, fmt.Errorf("memory store: get %s: %w", id, giftcard.ErrNotFound)
	}
	return s, nil
}

// idLock returns the per-id mutex, or false if id has no row. Rows are never
// deleted, so only stored ids ever get a lock entry.
func (m *MemoryStore) idLock(id string) (*sync.Mutex, bool) {
	m.mu.RLock()
	_, ok := m.rows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	l, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex), true
}

// Update holds the per-id lock for the whole cycle; the store-wide lock is only
// taken for the read and the write so other ids are never blocked by fn.
func (m *MemoryStore) Update(ctx context.Context, id string, fn Mutator) (Summary, error) {
	l, ok := m.idLock(id)
	if !ok {
		return Summary{}, fmt.Errorf("memory store: update %s: %w", id, giftcard.ErrNotFound)
	}
	l.Lock()
	defer l.Unlock()

	current, err := m.Get(ctx, id)
	if err != nil {
		return Summary{}, fmt.Errorf("memory store: update %s: %w", id, giftcard.ErrNotFound)
	}

	next := current
	if err := fn(&next); err != nil {
		return Summary{}, fmt.Errorf("memory store: update %s: %w", id, err)
	}
	next.ID = current.ID
	next.Version = current.Version + 1

	m.mu.Lock()
	m.rows[id] = next
	m.mu.Unlock()
	return next, nil
}

// scan calls yield for every row whose id has the filter prefix, in id order,
// until yield returns false. Callers hold m.mu.
func (m *MemoryStore) scan(f Filter, yield func(Summary) bool) {
	start, _ := slices.BinarySearch(m.ids, f.IDStartsWith)
	for _, id := range m.ids[start:] {
		if !strings.HasPrefix(id, f.IDStartsWith) {
			return
		}
		if !yield(m.rows[id]) {
			return
		}
	}
}

func (m *MemoryStore) Query(_ context.Context, f Filter, offset, limit int) ([]Summary, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("memory store: query: %w", err)
	}
	if err := ValidatePage(offset, limit); err != nil {
		return nil, fmt.Errorf("memory store: query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Summary, 0, min(limit, 64))
	skipped := 0
	m.scan(f, func(s Summary) bool {
		if skipped < offset {
			skipped++
			return true
		}
		results = append(results, s)
		return len(results) < limit
	})
	return results, nil
}

func (m *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("memory store: count: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	m.scan(f, func(Summary) bool {
		n++
		return true
	})
	return n, nil
}
