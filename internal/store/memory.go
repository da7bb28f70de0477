// Package store holds completed analyses for retrieval and simulation.
package store

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MemoryStore is a thread-safe LRU analysis store with TTL support.
// Used as the Community tier store.
type MemoryStore struct {
	mu         sync.RWMutex
	maxEntries int
	ttl        time.Duration
	items      map[string]*list.Element
	order      *list.List
	latest     map[string]string
}

type storeEntry struct {
	key       string
	tenantID  string
	result    *domain.AnalysisResult
	expiresAt time.Time
}

// NewMemoryStore creates a memory store holding at most maxEntries
// analyses. A non-positive ttl disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		latest:     make(map[string]string),
	}
}

// Put stores an analysis and marks it as the tenant's latest.
func (s *MemoryStore) Put(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if result == nil || result.ID == "" {
		return fmt.Errorf("analysis result with ID is required")
	}

	fullKey := s.makeKey(tenantID, result.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = time.Now().Add(s.ttl)
	}

	if elem, ok := s.items[fullKey]; ok {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*storeEntry)
		entry.result = result
		entry.expiresAt = expiresAt
	} else {
		entry := &storeEntry{
			key:       fullKey,
			tenantID:  tenantID,
			result:    result,
			expiresAt: expiresAt,
		}
		s.items[fullKey] = s.order.PushFront(entry)
	}

	s.latest[tenantID] = result.ID

	for s.order.Len() > s.maxEntries {
		s.removeOldest()
	}

	return nil
}

// Get retrieves an analysis by ID.
func (s *MemoryStore) Get(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	fullKey := s.makeKey(tenantID, analysisID)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[fullKey]
	if !ok {
		return nil, domain.ErrNoAnalysis
	}

	entry := elem.Value.(*storeEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, domain.ErrNoAnalysis
	}

	s.order.MoveToFront(elem)
	return entry.result, nil
}

// Latest retrieves the tenant's most recently stored analysis.
func (s *MemoryStore) Latest(ctx context.Context, tenantID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	s.mu.RLock()
	analysisID, ok := s.latest[tenantID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNoAnalysis
	}

	return s.Get(ctx, tenantID, analysisID)
}

// Delete removes an analysis.
func (s *MemoryStore) Delete(ctx context.Context, tenantID string, analysisID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	fullKey := s.makeKey(tenantID, analysisID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[fullKey]; ok {
		s.removeElement(elem)
	}
	if s.latest[tenantID] == analysisID {
		delete(s.latest, tenantID)
	}
	return nil
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order = list.New()
	s.latest = make(map[string]string)
	return nil
}

// Stats returns store statistics.
func (s *MemoryStore) Stats() (size int, capacity int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len(), s.maxEntries
}

func (s *MemoryStore) makeKey(tenantID, analysisID string) string {
	return tenantID + ":" + analysisID
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	entry := elem.Value.(*storeEntry)
	delete(s.items, entry.key)
	if s.latest[entry.tenantID] == entry.result.ID {
		delete(s.latest, entry.tenantID)
	}
}

func (s *MemoryStore) removeOldest() {
	elem := s.order.Back()
	if elem != nil {
		s.removeElement(elem)
	}
}
