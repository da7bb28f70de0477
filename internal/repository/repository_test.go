package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func sampleResult(id string, createdAt time.Time) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:        id,
		CreatedAt: createdAt,
		FraudRings: []domain.Ring{
			{
				RingID:         "LOOP_0001",
				PatternType:    domain.PatternCycle,
				MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"},
				MemberCount:    3,
				RiskScore:      88.5,
				TotalAmount:    45000,
				Edges: []domain.RingEdge{
					{Source: "ACC_A", Target: "ACC_B"},
					{Source: "ACC_B", Target: "ACC_C"},
					{Source: "ACC_C", Target: "ACC_A"},
				},
			},
		},
		Summary: domain.Summary{
			TotalTransactions:  3,
			TotalFraudRings:    1,
			CircularLoopsFound: 1,
			TotalFlaggedAmount: 45000,
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		result := sampleResult("an-001", time.Now().UTC())

		if err := repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		retrieved, err := repo.GetAnalysis(ctx, tenantID, "an-001")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}

		if retrieved.ID != "an-001" {
			t.Errorf("expected ID an-001, got %s", retrieved.ID)
		}
		if len(retrieved.FraudRings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(retrieved.FraudRings))
		}
		if retrieved.FraudRings[0].RingID != "LOOP_0001" {
			t.Errorf("expected ring LOOP_0001, got %s", retrieved.FraudRings[0].RingID)
		}
		if retrieved.Summary.TotalFlaggedAmount != 45000 {
			t.Errorf("expected flagged amount 45000, got %.2f", retrieved.Summary.TotalFlaggedAmount)
		}
	})

	t.Run("SaveReplacesExisting", func(t *testing.T) {
		result := sampleResult("an-001", time.Now().UTC())
		result.Summary.TotalTransactions = 99

		if err := repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		retrieved, err := repo.GetAnalysis(ctx, tenantID, "an-001")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if retrieved.Summary.TotalTransactions != 99 {
			t.Errorf("expected updated summary, got %d", retrieved.Summary.TotalTransactions)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, err := repo.GetAnalysis(ctx, tenantID, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetAnalysis(ctx, "tenant-002", "an-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got: %v", err)
		}
	})

	t.Run("ListAnalyses", func(t *testing.T) {
		base := time.Now().UTC()
		for i := 1; i <= 5; i++ {
			result := sampleResult(fmt.Sprintf("list-%d", i), base.Add(time.Duration(i)*time.Minute))
			if err := repo.SaveAnalysis(ctx, tenantID, result); err != nil {
				t.Fatalf("SaveAnalysis failed: %v", err)
			}
		}

		records, err := repo.ListAnalyses(ctx, tenantID, 3)
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].ID != "list-5" {
			t.Errorf("expected newest first, got %s", records[0].ID)
		}
		if records[0].Summary.TotalFraudRings != 1 {
			t.Errorf("expected summary on listing row, got %+v", records[0].Summary)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveAnalysis(ctx, "", sampleResult("an-002", time.Now().UTC()))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
