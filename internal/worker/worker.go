// Package worker provides async analysis processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
)

// Worker runs detection passes requested over the EventBus.
type Worker struct {
	bus      domain.EventBus
	store    domain.AnalysisStore
	repo     domain.Repository
	analyzer *detect.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker. The repository may be nil when
// durable persistence is disabled.
func NewWorker(bus domain.EventBus, store domain.AnalysisStore, repo domain.Repository, analyzer *detect.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		store:    store,
		repo:     repo,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing analysis requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes with a special "global" tenant ID.
// In production, per-tenant subscriptions or JetStream wildcards are
// preferred.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// AnalysisRequestMessage is the message payload for an analysis run.
// Exactly one of CSV or Transactions carries the input.
type AnalysisRequestMessage struct {
	RequestID    string               `json:"requestId"`
	TenantID     string               `json:"tenantId"`
	TraceID      string               `json:"traceId"`
	CSV          string               `json:"csv,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
}

// processRequest runs one detection pass for a queued request.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req AnalysisRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	txns := req.Transactions
	if len(txns) == 0 && req.CSV != "" {
		parsed, err := ingest.Parse(strings.NewReader(ingest.Sanitize(req.CSV)))
		if err != nil {
			slog.Error("failed to parse request CSV",
				"request_id", req.RequestID,
				"tenant_id", tenantID,
				"error", err,
			)
			return err
		}
		txns = parsed
	}

	slog.Debug("processing analysis request",
		"request_id", req.RequestID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"transaction_count", len(txns),
	)

	result := w.analyzer.Run(txns)
	result.TenantID = tenantID

	if err := w.store.Put(ctx, tenantID, result); err != nil {
		slog.Error("failed to store analysis",
			"analysis_id", result.ID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to persist analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	// Publish completion, then one event per detected ring
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish analysis completion",
			"analysis_id", result.ID,
			"error", err,
		)
	}

	for i := range result.FraudRings {
		ringPayload, _ := json.Marshal(&result.FraudRings[i])
		if err := w.bus.Publish(ctx, tenantID, domain.TopicRingDetected, ringPayload); err != nil {
			slog.Error("failed to publish ring detection",
				"ring_id", result.FraudRings[i].RingID,
				"error", err,
			)
		}
	}

	slog.Info("analysis request processed",
		"request_id", req.RequestID,
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"rings", len(result.FraudRings),
		"flagged_accounts", result.Summary.SuspiciousAccountsFlagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}
