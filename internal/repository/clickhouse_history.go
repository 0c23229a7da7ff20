package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
)

// ClickHouseHistory persists ensemble results for audit and backtest
// queries.
type ClickHouseHistory struct {
	db    *sql.DB
	table string
}

func NewClickHouseHistory(db *sql.DB, table string) domrepo.HistoryStore {
	if table == "" {
		table = "prediction_results"
	}
	return &ClickHouseHistory{db: db, table: table}
}

func (s *ClickHouseHistory) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		ticker LowCardinality(String),
		current_price Float64,
		prediction Float64,
		confidence Float64,
		agreement Float64,
		models_used UInt8,
		degraded UInt8
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (ticker, ts)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

func (s *ClickHouseHistory) SaveResult(ctx context.Context, res models.EnsembleResult) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, ticker, current_price, prediction, confidence, agreement, models_used, degraded) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	degraded := uint8(0)
	if res.Degraded {
		degraded = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		res.ComputedAt,
		res.Ticker,
		res.CurrentPrice,
		res.Prediction,
		res.Confidence,
		res.Agreement,
		uint8(res.ModelsUsed),
		degraded,
	)
	return err
}

func (s *ClickHouseHistory) RecentResults(ctx context.Context, ticker string, since time.Time, limit int) ([]models.EnsembleResult, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT ts, ticker, current_price, prediction, confidence, agreement, models_used, degraded FROM %s WHERE ticker = ? AND ts >= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, ticker, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EnsembleResult
	for rows.Next() {
		var res models.EnsembleResult
		var used, degraded uint8
		if err := rows.Scan(&res.ComputedAt, &res.Ticker, &res.CurrentPrice, &res.Prediction, &res.Confidence, &res.Agreement, &used, &degraded); err != nil {
			return nil, err
		}
		res.ModelsUsed = int(used)
		res.Degraded = degraded != 0
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *ClickHouseHistory) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseHistory) Close() error {
	return nil // pool lifetime belongs to pkg/clickhouse
}
