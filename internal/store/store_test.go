package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func sampleResult(id string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Summary: domain.Summary{
			TotalTransactions:     10,
			TotalAccountsAnalyzed: 4,
		},
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(100, time.Minute)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PutAndGet", func(t *testing.T) {
		result := sampleResult("an-1")
		if err := s.Put(ctx, tenantID, result); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(ctx, tenantID, "an-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ID != "an-1" {
			t.Errorf("expected ID 'an-1', got '%s'", got.ID)
		}
		if got.Summary.TotalTransactions != 10 {
			t.Errorf("expected 10 transactions, got %d", got.Summary.TotalTransactions)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, err := s.Get(ctx, tenantID, "nonexistent")
		if !errors.Is(err, domain.ErrNoAnalysis) {
			t.Errorf("expected ErrNoAnalysis, got: %v", err)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		_ = s.Put(ctx, tenantID, sampleResult("an-2"))
		_ = s.Put(ctx, tenantID, sampleResult("an-3"))

		got, err := s.Latest(ctx, tenantID)
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if got.ID != "an-3" {
			t.Errorf("expected latest 'an-3', got '%s'", got.ID)
		}
	})

	t.Run("LatestMiss", func(t *testing.T) {
		_, err := s.Latest(ctx, "tenant-empty")
		if !errors.Is(err, domain.ErrNoAnalysis) {
			t.Errorf("expected ErrNoAnalysis, got: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = s.Put(ctx, tenantID, sampleResult("an-4"))

		if err := s.Delete(ctx, tenantID, "an-4"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		_, err := s.Get(ctx, tenantID, "an-4")
		if !errors.Is(err, domain.ErrNoAnalysis) {
			t.Error("expected ErrNoAnalysis after delete")
		}

		// an-4 was the latest, so the alias must be gone too
		_, err = s.Latest(ctx, tenantID)
		if !errors.Is(err, domain.ErrNoAnalysis) {
			t.Error("expected ErrNoAnalysis for latest after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		short := NewMemoryStore(10, 10*time.Millisecond)
		_ = short.Put(ctx, tenantID, sampleResult("an-exp"))

		if _, err := short.Get(ctx, tenantID, "an-exp"); err != nil {
			t.Fatalf("expected hit before expiry: %v", err)
		}

		time.Sleep(20 * time.Millisecond)

		_, err := short.Get(ctx, tenantID, "an-exp")
		if !errors.Is(err, domain.ErrNoAnalysis) {
			t.Errorf("expected ErrNoAnalysis after expiry, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := s.Put(ctx, "", sampleResult("an-5")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := s.Get(ctx, "", "an-5"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestMemoryStoreEviction(t *testing.T) {
	s := NewMemoryStore(3, time.Minute)
	ctx := context.Background()
	tenantID := "tenant-001"

	for i := 1; i <= 5; i++ {
		_ = s.Put(ctx, tenantID, sampleResult(fmt.Sprintf("an-%d", i)))
	}

	size, capacity := s.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size 3 capacity 3, got %d/%d", size, capacity)
	}

	// Oldest entries evicted
	if _, err := s.Get(ctx, tenantID, "an-1"); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Error("expected an-1 to be evicted")
	}
	if _, err := s.Get(ctx, tenantID, "an-5"); err != nil {
		t.Errorf("expected an-5 to survive: %v", err)
	}
}

func TestMemoryStoreTenantIsolation(t *testing.T) {
	s := NewMemoryStore(100, time.Minute)
	ctx := context.Background()

	_ = s.Put(ctx, "tenant-a", sampleResult("an-1"))

	_, err := s.Get(ctx, "tenant-b", "an-1")
	if !errors.Is(err, domain.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis for other tenant, got: %v", err)
	}

	_, err = s.Latest(ctx, "tenant-b")
	if !errors.Is(err, domain.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis for other tenant latest, got: %v", err)
	}
}

func TestNewStoreFactory(t *testing.T) {
	s, err := New(domain.StoreConfig{Type: "memory", MaxEntries: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	if _, err := New(domain.StoreConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported store type")
	}
}
