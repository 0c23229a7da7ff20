package usecase

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	applogger "FinSight/pkg/logger"
)

// Evaluate reports whether a price crosses the rule's threshold in the
// rule's direction. Inactive rules never fire. Prices exactly at the
// threshold do not fire; the crossing must be strict.
func Evaluate(rule models.AlertRule, price float64) bool {
	if !rule.Active {
		return false
	}
	switch rule.Comparison {
	case models.CompareAbove:
		return price > rule.Threshold
	case models.CompareBelow:
		return price < rule.Threshold
	default:
		return false
	}
}

// AlertRegistry holds the active alert rules and evaluates them against
// the latest prices. Rules fire once and deactivate.
type AlertRegistry struct {
	clock   domsvc.Clock
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu    sync.RWMutex
	rules map[string]*models.AlertRule
}

type AlertRegistryOption func(*AlertRegistry)

// WithAlertClock injects a clock. Test hook.
func WithAlertClock(clock domsvc.Clock) AlertRegistryOption {
	return func(r *AlertRegistry) { r.clock = clock }
}

// WithAlertMetrics injects a metrics recorder.
func WithAlertMetrics(m domrepo.Metrics) AlertRegistryOption {
	return func(r *AlertRegistry) { r.metrics = m }
}

// WithAlertLogger injects a structured logger.
func WithAlertLogger(l *applogger.Logger) AlertRegistryOption {
	return func(r *AlertRegistry) { r.l = l }
}

func NewAlertRegistry(opts ...AlertRegistryOption) *AlertRegistry {
	r := &AlertRegistry{
		clock: domsvc.SystemClock{},
		rules: make(map[string]*models.AlertRule),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and stores a new rule, returning it with its
// generated ID.
func (r *AlertRegistry) Register(ticker string, cmp models.Comparison, threshold float64) (models.AlertRule, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return models.AlertRule{}, fmt.Errorf("ticker required")
	}
	if cmp != models.CompareAbove && cmp != models.CompareBelow {
		return models.AlertRule{}, fmt.Errorf("comparison must be %q or %q", models.CompareAbove, models.CompareBelow)
	}
	if threshold <= 0 {
		return models.AlertRule{}, fmt.Errorf("threshold must be positive")
	}

	rule := models.AlertRule{
		ID:         uuid.NewString(),
		Ticker:     ticker,
		Comparison: cmp,
		Threshold:  threshold,
		Active:     true,
		CreatedAt:  r.clock.Now(),
	}
	r.mu.Lock()
	r.rules[rule.ID] = &rule
	r.mu.Unlock()
	return rule, nil
}

// Remove deletes a rule by ID.
func (r *AlertRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return false
	}
	delete(r.rules, id)
	return true
}

// List returns all rules sorted by creation time, newest first.
func (r *AlertRegistry) List() []models.AlertRule {
	r.mu.RLock()
	out := make([]models.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Tickers lists the distinct tickers with at least one active rule, so
// the evaluation loop only resolves prices it needs.
func (r *AlertRegistry) Tickers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, rule := range r.rules {
		if !rule.Active {
			continue
		}
		if _, ok := seen[rule.Ticker]; ok {
			continue
		}
		seen[rule.Ticker] = struct{}{}
		out = append(out, rule.Ticker)
	}
	sort.Strings(out)
	return out
}

// EvaluateAll checks every active rule against the given prices and
// returns the rules that fired. Fired rules are deactivated so they
// trigger exactly once. Tickers missing from prices are skipped.
func (r *AlertRegistry) EvaluateAll(prices map[string]float64) []models.AlertRule {
	now := r.clock.Now()
	var fired []models.AlertRule

	r.mu.Lock()
	for _, rule := range r.rules {
		price, ok := prices[rule.Ticker]
		if !ok {
			continue
		}
		if !Evaluate(*rule, price) {
			continue
		}
		rule.Active = false
		at := now
		rule.TriggeredAt = &at
		fired = append(fired, *rule)
	}
	r.mu.Unlock()

	for _, rule := range fired {
		if r.metrics != nil {
			r.metrics.RecordAlert(rule.Ticker)
		}
		if r.l != nil {
			r.l.Info("alert triggered",
				applogger.String("id", rule.ID),
				applogger.String("ticker", rule.Ticker),
				applogger.String("comparison", string(rule.Comparison)),
				applogger.Float64("threshold", rule.Threshold),
			)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i].CreatedAt.Before(fired[j].CreatedAt) })
	return fired
}

// Triggered lists rules that already fired, newest first.
func (r *AlertRegistry) Triggered() []models.AlertRule {
	r.mu.RLock()
	out := make([]models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.TriggeredAt != nil {
			out = append(out, *rule)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(*out[j].TriggeredAt)
	})
	return out
}
