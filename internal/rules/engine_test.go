package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestExpressionEngineCreation(t *testing.T) {
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.CachedPrograms() != 0 {
		t.Errorf("expected 0 programs, got %d", engine.CachedPrograms())
	}
}

func TestExpressionValidate(t *testing.T) {
	engine, _ := NewExpressionEngine()

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"Valid", "amount <= 5000.0 && linked_accounts == 0", false},
		{"Empty", "   ", true},
		{"Syntax", "this is not valid CEL !!!", true},
		{"NonBool", "amount * 2.0", true},
		{"UnknownVariable", "tx.amount > 1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestExpressionEvaluate(t *testing.T) {
	engine, _ := NewExpressionEngine()
	ctx := context.Background()

	w := &domain.WithdrawalRequest{ID: "w-1", ClientID: "c-1", Amount: 800}
	ev := &domain.Evidence{
		Classification: domain.Classification{
			Type:      domain.RefDeposit,
			Reference: &domain.ReferenceEvent{Type: domain.RefDeposit, Amount: 1000},
		},
		Turnover: &domain.TurnoverReport{Total: domain.TotalTurnover{Wagered: 1000, Percentage: 100}},
		Profile:  &domain.ClientProfile{Balance: 3, Verified: true},
	}

	t.Run("Passes", func(t *testing.T) {
		cfg := json.RawMessage(`{"expression": "amount <= reference_amount && turnover_percentage >= 100 && verified", "detail": "within deposit"}`)
		res, err := engine.Evaluate(ctx, cfg, w, ev)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Passed || res.Detail != "within deposit" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("Fails", func(t *testing.T) {
		cfg := json.RawMessage(`{"expression": "balance == 0.0"}`)
		res, err := engine.Evaluate(ctx, cfg, w, ev)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Passed {
			t.Error("expected failure")
		}
		if res.Detail != "balance == 0.0" {
			t.Errorf("expected expression as default detail, got %q", res.Detail)
		}
	})

	t.Run("ProgramsCached", func(t *testing.T) {
		cfg := json.RawMessage(`{"expression": "classification == 'DEPOSIT'"}`)
		before := engine.CachedPrograms()
		for i := 0; i < 3; i++ {
			if _, err := engine.Evaluate(ctx, cfg, w, ev); err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
		}
		if engine.CachedPrograms() != before+1 {
			t.Errorf("expected one new cached program, got %d -> %d", before, engine.CachedPrograms())
		}
	})

	t.Run("MalformedConfig", func(t *testing.T) {
		_, err := engine.Evaluate(ctx, json.RawMessage(`{"expr": 1}`), w, ev)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("NilEvidenceParts", func(t *testing.T) {
		cfg := json.RawMessage(`{"expression": "risk_severity == 'LOW' && policy_name == '' && deposit_amount == 0.0"}`)
		res, err := engine.Evaluate(ctx, cfg, w, &domain.Evidence{})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !res.Passed {
			t.Errorf("expected defaults for missing evidence, got %+v", res)
		}
	})
}
