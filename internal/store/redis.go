package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RedisStore implements AnalysisStore using Redis.
// Used as the Pro tier store so every node sees the same analyses.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed analysis store.
func NewRedisStore(cfg domain.StoreConfig) (*RedisStore, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// Put stores an analysis and updates the tenant's latest pointer.
func (s *RedisStore) Put(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if result == nil || result.ID == "" {
		return fmt.Errorf("analysis result with ID is required")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.makeKey(tenantID, result.ID), data, s.ttl)
	pipe.Set(ctx, s.latestKey(tenantID), result.ID, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves an analysis by ID.
func (s *RedisStore) Get(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	data, err := s.client.Get(ctx, s.makeKey(tenantID, analysisID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNoAnalysis
	}
	if err != nil {
		return nil, err
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &result, nil
}

// Latest retrieves the tenant's most recently stored analysis.
func (s *RedisStore) Latest(ctx context.Context, tenantID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	analysisID, err := s.client.Get(ctx, s.latestKey(tenantID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNoAnalysis
	}
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, tenantID, analysisID)
}

// Delete removes an analysis. The latest pointer is cleared if it
// referenced the deleted analysis.
func (s *RedisStore) Delete(ctx context.Context, tenantID string, analysisID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	if err := s.client.Del(ctx, s.makeKey(tenantID, analysisID)).Err(); err != nil {
		return err
	}

	current, err := s.client.Get(ctx, s.latestKey(tenantID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current == analysisID {
		return s.client.Del(ctx, s.latestKey(tenantID)).Err()
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) makeKey(tenantID, analysisID string) string {
	return "kestrel:" + tenantID + ":analysis:" + analysisID
}

func (s *RedisStore) latestKey(tenantID string) string {
	return "kestrel:" + tenantID + ":analysis:latest"
}
