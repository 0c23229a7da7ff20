package usecase

import (
	"testing"
	"time"

	"FinSight/internal/domain/models"
)

func TestEvaluateDirections(t *testing.T) {
	above := models.AlertRule{Ticker: "SPY", Comparison: models.CompareAbove, Threshold: 600, Active: true}
	below := models.AlertRule{Ticker: "SPY", Comparison: models.CompareBelow, Threshold: 600, Active: true}

	if !Evaluate(above, 605) {
		t.Fatalf("above rule should fire at 605")
	}
	if Evaluate(above, 595) {
		t.Fatalf("above rule must not fire at 595")
	}
	if Evaluate(above, 600) {
		t.Fatalf("crossing must be strict, 600 is not above 600")
	}
	if !Evaluate(below, 595) {
		t.Fatalf("below rule should fire at 595")
	}
	if Evaluate(below, 605) {
		t.Fatalf("below rule must not fire at 605")
	}
}

func TestEvaluateInactiveNeverFires(t *testing.T) {
	rule := models.AlertRule{Ticker: "SPY", Comparison: models.CompareAbove, Threshold: 600, Active: false}
	if Evaluate(rule, 700) {
		t.Fatalf("inactive rule fired")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewAlertRegistry()

	if _, err := r.Register("", models.CompareAbove, 600); err == nil {
		t.Fatalf("empty ticker accepted")
	}
	if _, err := r.Register("SPY", "between", 600); err == nil {
		t.Fatalf("bad comparison accepted")
	}
	if _, err := r.Register("SPY", models.CompareAbove, -5); err == nil {
		t.Fatalf("negative threshold accepted")
	}

	rule, err := r.Register(" spy ", models.CompareAbove, 600)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rule.ID == "" || rule.Ticker != "SPY" || !rule.Active {
		t.Fatalf("rule not initialized: %+v", rule)
	}
}

func TestEvaluateAllFiresOnce(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)}
	r := NewAlertRegistry(WithAlertClock(clock))

	rule, err := r.Register("SPY", models.CompareAbove, 600)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if fired := r.EvaluateAll(map[string]float64{"SPY": 595}); len(fired) != 0 {
		t.Fatalf("fired below threshold: %v", fired)
	}

	fired := r.EvaluateAll(map[string]float64{"SPY": 605})
	if len(fired) != 1 || fired[0].ID != rule.ID {
		t.Fatalf("expected the SPY rule to fire, got %v", fired)
	}
	if fired[0].TriggeredAt == nil || !fired[0].TriggeredAt.Equal(clock.Now()) {
		t.Fatalf("trigger timestamp not set from clock")
	}

	// Single fire: the same crossing must not fire again.
	if fired := r.EvaluateAll(map[string]float64{"SPY": 610}); len(fired) != 0 {
		t.Fatalf("rule fired twice: %v", fired)
	}

	triggered := r.Triggered()
	if len(triggered) != 1 || triggered[0].ID != rule.ID {
		t.Fatalf("triggered list wrong: %v", triggered)
	}
}

func TestEvaluateAllSkipsMissingPrices(t *testing.T) {
	r := NewAlertRegistry()
	if _, err := r.Register("QQQ", models.CompareBelow, 400); err != nil {
		t.Fatalf("register: %v", err)
	}
	if fired := r.EvaluateAll(map[string]float64{"SPY": 605}); len(fired) != 0 {
		t.Fatalf("rule fired without a price: %v", fired)
	}
}

func TestTickersListsActiveRulesOnly(t *testing.T) {
	r := NewAlertRegistry()
	if _, err := r.Register("SPY", models.CompareAbove, 600); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("QQQ", models.CompareBelow, 400); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("SPY", models.CompareBelow, 500); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.Tickers()
	if len(got) != 2 || got[0] != "QQQ" || got[1] != "SPY" {
		t.Fatalf("tickers %v", got)
	}

	r.EvaluateAll(map[string]float64{"QQQ": 300})
	got = r.Tickers()
	if len(got) != 1 || got[0] != "SPY" {
		t.Fatalf("fired ticker still listed: %v", got)
	}
}

func TestRemoveRule(t *testing.T) {
	r := NewAlertRegistry()
	rule, err := r.Register("SPY", models.CompareAbove, 600)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Remove(rule.ID) {
		t.Fatalf("remove returned false for existing rule")
	}
	if r.Remove(rule.ID) {
		t.Fatalf("remove returned true for missing rule")
	}
	if len(r.List()) != 0 {
		t.Fatalf("rule survived removal")
	}
}
