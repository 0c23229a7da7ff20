package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"FinSight/internal/domain/models"
	"FinSight/internal/usecase"
)

func firedRegistry(t *testing.T, n int) *usecase.AlertRegistry {
	t.Helper()
	alerts := usecase.NewAlertRegistry()
	for i := 0; i < n; i++ {
		if _, err := alerts.Register("SPY", models.CompareAbove, 600+float64(i)*10); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	alerts.EvaluateAll(map[string]float64{"SPY": 1000})
	return alerts
}

func triggeredRequest(t *testing.T, alerts *usecase.AlertRegistry, target string) []models.AlertRule {
	t.Helper()
	h := NewPredictionEchoHandler(nil, nil, alerts)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	if err := h.TriggeredAlerts(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Data []models.AlertRule `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Data
}

func TestTriggeredAlertsHonorsLimitParam(t *testing.T) {
	alerts := firedRegistry(t, 3)

	got := triggeredRequest(t, alerts, "/api/alerts/triggered?limit=2")
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
}

func TestTriggeredAlertsIgnoresBadLimit(t *testing.T) {
	alerts := firedRegistry(t, 3)

	for _, target := range []string{
		"/api/alerts/triggered",
		"/api/alerts/triggered?limit=abc",
		"/api/alerts/triggered?limit=0",
		"/api/alerts/triggered?limit=99",
	} {
		if got := triggeredRequest(t, alerts, target); len(got) != 3 {
			t.Fatalf("%s: expected all 3 rules, got %d", target, len(got))
		}
	}
}
