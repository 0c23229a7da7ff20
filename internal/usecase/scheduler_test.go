package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
	svccache "FinSight/internal/service/cache"
	"FinSight/internal/services/ensemble"
)

type fakePrices struct{ m map[string]float64 }

func (f fakePrices) LastPrices(tickers []string) map[string]float64 { return f.m }

func newSchedulerFixture(t *testing.T, clock *manualClock) (*Scheduler, *fakeProvider, []*fakeAdapter, *AlertRegistry) {
	t.Helper()
	provider := &fakeProvider{bars: waveBars(200)}
	fakes := []*fakeAdapter{
		{kind: models.KindTreeEnsemble},
		{kind: models.KindBoostedTree},
		{kind: models.KindSequenceNet},
	}
	adapters := make([]domsvc.ModelAdapter, len(fakes))
	for i, f := range fakes {
		adapters[i] = f
	}
	modelCache := NewModelCache(adapters, WithModelCacheClock(clock))
	engine := NewPredictionUseCase(provider, modelCache, ensemble.NewCombiner(), svccache.NewPredictionCache())
	alerts := NewAlertRegistry(WithAlertClock(clock))
	sched := NewScheduler(engine, modelCache, alerts, fakePrices{m: map[string]float64{"SPY": 605}},
		WithSchedulerClock(clock),
		WithAlertInterval(30*time.Second),
		WithRetrainScanInterval(time.Hour),
	)
	return sched, provider, fakes, alerts
}

func TestRetrainPassRefreshesStaleArtifacts(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	sched, _, fakes, _ := newSchedulerFixture(t, clock)

	if _, err := sched.engine.GetPrediction(context.Background(), "SPY", 0); err != nil {
		t.Fatalf("initial prediction: %v", err)
	}
	for _, f := range fakes {
		if got := f.trains.Load(); got != 1 {
			t.Fatalf("%s trained %d times after initial prediction", f.kind, got)
		}
	}

	// Fresh artifacts: a pass must be a no-op.
	sched.RetrainPass(context.Background())
	for _, f := range fakes {
		if got := f.trains.Load(); got != 1 {
			t.Fatalf("%s retrained while fresh", f.kind)
		}
	}

	clock.Advance(25 * time.Hour)
	sched.RetrainPass(context.Background())
	for _, f := range fakes {
		if got := f.trains.Load(); got != 2 {
			t.Fatalf("%s expected 2 trainings after stale pass, got %d", f.kind, got)
		}
	}
}

func TestRetrainPassSurvivesProviderFailure(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	sched, provider, _, _ := newSchedulerFixture(t, clock)

	if _, err := sched.engine.GetPrediction(context.Background(), "SPY", 0); err != nil {
		t.Fatalf("initial prediction: %v", err)
	}
	before, _ := sched.modelsC.Artifact("SPY", models.KindTreeEnsemble)

	clock.Advance(25 * time.Hour)
	provider.err = errors.New("upstream down")
	sched.RetrainPass(context.Background())

	after, ok := sched.modelsC.Artifact("SPY", models.KindTreeEnsemble)
	if !ok || after != before {
		t.Fatalf("failed retrain must keep serving the old artifact")
	}
}

func TestAlertPassFiresDueRules(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	sched, _, _, alerts := newSchedulerFixture(t, clock)

	rule, err := alerts.Register("SPY", models.CompareAbove, 600)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sched.AlertPass()
	triggered := alerts.Triggered()
	if len(triggered) != 1 || triggered[0].ID != rule.ID {
		t.Fatalf("expected rule to fire on pass, got %v", triggered)
	}

	// Fired rules leave the active set; the next pass sees no work.
	sched.AlertPass()
	if len(alerts.Triggered()) != 1 {
		t.Fatalf("rule fired more than once")
	}
}

func TestSchedulerLoopsRunOnTicksAndStop(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	sched, _, _, alerts := newSchedulerFixture(t, clock)

	if _, err := alerts.Register("SPY", models.CompareAbove, 600); err != nil {
		t.Fatalf("register: %v", err)
	}

	sched.Start(context.Background())

	// Re-tick until the loops have registered their tickers and drained
	// a tick; Tick is non-blocking so this is safe to repeat.
	deadline := time.Now().Add(2 * time.Second)
	for len(alerts.Triggered()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("alert loop did not run on tick")
		}
		clock.Tick()
		time.Sleep(5 * time.Millisecond)
	}

	sched.Stop()
}
