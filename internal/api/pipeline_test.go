package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/batch"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/vendor"
)

// fakeBackoffice serves a fully wagered deposit ledger for every client.
func fakeBackoffice(t *testing.T, ledgerCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	now := time.Now().UTC()

	ledger := []domain.Transaction{
		{ID: "t-3", DocumentType: domain.DocWin, Amount: 100, BalanceAfter: 700, Game: "SlotA", Product: "casino", CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "t-2", DocumentType: domain.DocBet, Amount: 1000, BalanceAfter: 0, Game: "SlotA", Product: "casino", CreatedAt: now.Add(-time.Hour)},
		{ID: "t-1", DocumentType: domain.DocDeposit, Amount: 1000, BalanceAfter: 1000, PaymentSystem: "papara", CreatedAt: now.Add(-2 * time.Hour)},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /clients/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		ledgerCalls.Add(1)
		json.NewEncoder(w).Encode(ledger)
	})
	mux.HandleFunc("GET /clients/{id}/bets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /clients/{id}/logins", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /clients/{id}/profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.ClientProfile{ClientID: r.PathValue("id"), Verified: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestEvaluatePipeline drives HTTP evaluation through the batch processor,
// the vendor client and the SQLite snapshot store.
func TestEvaluatePipeline(t *testing.T) {
	var ledgerCalls atomic.Int32
	backoffice := fakeBackoffice(t, &ledgerCalls)

	tmpFile, err := os.CreateTemp("", "harrier-pipeline-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	client, err := vendor.New(domain.VendorConfig{BaseURL: backoffice.URL, Token: "secret", Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("failed to create vendor client: %v", err)
	}

	expr, err := rules.NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create expression engine: %v", err)
	}
	registry := rules.DefaultRegistry(expr)
	lru := cache.NewLRUCache(100)
	cat := catalog.New(repo, lru, time.Minute)

	processor := batch.New(batch.Deps{
		Vendor:    client,
		Repo:      repo,
		Catalog:   cat,
		Evaluator: rules.NewEvaluator(registry),
		Cache:     lru,
	}, domain.DefaultEngineConfig(), domain.DefaultBatchConfig())

	env := &testEnv{repo: repo}
	env.server = NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Repo:        repo,
		Cache:       lru,
		Evaluator:   processor,
		Catalog:     cat,
		Registry:    registry,
		Expressions: expr,
	}, "test-v1")

	evaluate := func(t *testing.T, id string, amount float64) EvaluateResponse {
		t.Helper()
		rr := env.do(t, http.MethodPost, "/withdrawals/evaluate", map[string]any{
			"id":       id,
			"clientId": "c-1",
			"amount":   amount,
		}, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		return decodeBody[EvaluateResponse](t, rr)
	}

	t.Run("ApprovesWageredDeposit", func(t *testing.T) {
		resp := evaluate(t, "w-1", 800)
		if resp.Decision != domain.DecisionApprove {
			t.Fatalf("expected approve, got %s: %s", resp.Decision, resp.Reason)
		}
		if resp.FromCache || resp.Live {
			t.Errorf("expected fresh simulation result, got %+v", resp)
		}
	})

	t.Run("ReplaysStoredDecision", func(t *testing.T) {
		before := ledgerCalls.Load()
		resp := evaluate(t, "w-1", 800)
		if !resp.FromCache || resp.Decision != domain.DecisionApprove {
			t.Errorf("expected cached approve, got %+v", resp)
		}
		if ledgerCalls.Load() != before {
			t.Error("replay must not refetch the ledger")
		}

		rr := env.do(t, http.MethodGet, "/snapshots/w-1", nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected snapshot, got %d", rr.Code)
		}
		snap := decodeBody[domain.Snapshot](t, rr)
		if snap.Decision.Value != domain.DecisionApprove || snap.Classification.Type != domain.RefDeposit {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("RuleEditAppliesToNextWithdrawal", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/rules", map[string]any{
			"key":      domain.RuleMaxAmount,
			"critical": true,
			"config":   map[string]any{"max": 500},
		}, "ops-1")
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		resp := evaluate(t, "w-2", 800)
		if resp.Decision != domain.DecisionReject {
			t.Fatalf("expected reject after rule edit, got %s: %s", resp.Decision, resp.Reason)
		}
		if !strings.Contains(resp.Reason, domain.RuleMaxAmount) {
			t.Errorf("expected reason to name the rule, got %q", resp.Reason)
		}

		// the earlier decision is frozen
		if again := evaluate(t, "w-1", 800); again.Decision != domain.DecisionApprove {
			t.Errorf("stored decision changed to %s", again.Decision)
		}
	})

	t.Run("ClosedWithdrawalConflicts", func(t *testing.T) {
		before := ledgerCalls.Load()
		rr := env.do(t, http.MethodPost, "/withdrawals/evaluate", map[string]any{
			"id":       "w-3",
			"clientId": "c-1",
			"amount":   800,
			"state":    domain.StatePaid,
		}, "")
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
		if ledgerCalls.Load() != before {
			t.Error("closed withdrawal must not fetch evidence")
		}
		if rr := env.do(t, http.MethodGet, "/snapshots/w-3", nil, ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected no snapshot, got %d", rr.Code)
		}
	})
}
