package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/convention"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/simulate"
	"github.com/opensource-finance/kestrel/internal/store"
)

const testTenant = "tenant-001"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.DefaultConfig()
	analysisStore := store.NewMemoryStore(10, time.Minute)
	analyzer := detect.New(cfg.Detection, domain.NoopTrapClassifier{}, convention.Default())
	simulator := simulate.New(cfg.Detection)

	return NewServer(cfg.Server, analysisStore, nil, nil, analyzer, simulator, "test")
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte(content))
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

const cycleCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"TXN_1,ACC_A,ACC_B,15000,2024-03-01 10:00:00\n" +
	"TXN_2,ACC_B,ACC_C,15000,2024-03-01 11:00:00\n" +
	"TXN_3,ACC_C,ACC_A,15000,2024-03-01 12:00:00\n"

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", body["status"])
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /ready, got %d", rec.Code)
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", rec.Code)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartCSV(t, "transactions.csv", cycleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid analysis body: %v", err)
	}
	if result.ID == "" {
		t.Error("expected analysis ID")
	}
	if len(result.FraudRings) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(result.FraudRings))
	}
	if result.FraudRings[0].PatternType != domain.PatternCycle {
		t.Errorf("expected cycle pattern, got %s", result.FraudRings[0].PatternType)
	}

	t.Run("LatestAlias", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/analyses/latest", nil)
		req.Header.Set(TenantIDHeader, testTenant)

		rec := doRequest(srv, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var latest domain.AnalysisResult
		if err := json.Unmarshal(rec.Body.Bytes(), &latest); err != nil {
			t.Fatalf("invalid body: %v", err)
		}
		if latest.ID != result.ID {
			t.Errorf("expected latest %s, got %s", result.ID, latest.ID)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+result.ID, nil)
		req.Header.Set(TenantIDHeader, testTenant)

		rec := doRequest(srv, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("Accounts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set(TenantIDHeader, testTenant)

		rec := doRequest(srv, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Accounts []string `json:"accounts"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid accounts body: %v", err)
		}
		want := []string{"ACC_A", "ACC_B", "ACC_C"}
		if len(body.Accounts) != len(want) {
			t.Fatalf("expected %d accounts, got %d", len(want), len(body.Accounts))
		}
		for i, id := range want {
			if body.Accounts[i] != id {
				t.Errorf("expected account %s at %d, got %s", id, i, body.Accounts[i])
			}
		}
	})

	t.Run("Simulate", func(t *testing.T) {
		payload := `{"sender_id":"ACC_NEW","receiver_id":"ACC_A","amount":9000}`
		req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(TenantIDHeader, testTenant)

		rec := doRequest(srv, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var sim domain.SimulationResult
		if err := json.Unmarshal(rec.Body.Bytes(), &sim); err != nil {
			t.Fatalf("invalid simulation body: %v", err)
		}
		if sim.SimulationID == "" {
			t.Error("expected simulation ID")
		}
		if sim.Verdict == "" {
			t.Error("expected verdict")
		}
	})
}

func TestAnalyzeRejectsNonCSV(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartCSV(t, "transactions.txt", cycleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-CSV upload, got %d", rec.Code)
	}
}

func TestAnalyzeMissingColumns(t *testing.T) {
	srv := newTestServer(t)

	csv := "transaction_id,sender_id,amount\nTXN_1,ACC_A,100\n"
	body, contentType := multipartCSV(t, "bad.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing columns, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing required columns") {
		t.Errorf("expected missing-columns error, got: %s", rec.Body.String())
	}
}

func TestAnalyzeEmptyCSV(t *testing.T) {
	srv := newTestServer(t)

	csv := "transaction_id,sender_id,receiver_id,amount,timestamp\n"
	body, contentType := multipartCSV(t, "empty.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for empty CSV, got %d", rec.Code)
	}
}

func TestSimulateWithoutAnalysis(t *testing.T) {
	srv := newTestServer(t)

	payload := `{"sender_id":"ACC_A","receiver_id":"ACC_B","amount":5000}`
	req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without prior analysis, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no analysis data") {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}
}

func TestSimulateValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"MissingSender", `{"receiver_id":"ACC_B","amount":5000}`},
		{"MissingReceiver", `{"sender_id":"ACC_A","amount":5000}`},
		{"ZeroAmount", `{"sender_id":"ACC_A","receiver_id":"ACC_B","amount":0}`},
		{"BadJSON", `{"sender_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(tt.payload))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(TenantIDHeader, testTenant)

			rec := doRequest(srv, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/nonexistent", nil)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAccountsEmptyBeforeAnalysis(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Accounts []string `json:"accounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(body.Accounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(body.Accounts))
	}
}

func TestSampleCSV(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sample-csv", nil)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}

	// The sample must round-trip through the parser
	txns, err := ingest.Parse(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("sample CSV failed to parse: %v", err)
	}
	if len(txns) == 0 {
		t.Error("expected transactions in sample CSV")
	}
}

func TestListAnalysesWithoutRepository(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	req.Header.Set(TenantIDHeader, testTenant)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without repository, got %d", rec.Code)
	}
}
