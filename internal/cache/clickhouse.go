package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig holds configuration for ClickHouseStore
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore records finished orchestration steps.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

const createStepsTable = `
CREATE TABLE IF NOT EXISTS session_steps (
	session_id  String,
	plan_kind   LowCardinality(String),
	step_index  UInt8,
	step_kind   LowCardinality(String),
	status      LowCardinality(String),
	tx_hash     String,
	reason      String,
	pair        String,
	token_a     String,
	token_b     String,
	finished_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (finished_at, session_id, step_index)`

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createStepsTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create session_steps table: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

func (c *ClickHouseStore) InsertStep(ctx context.Context, rec *models.StepRecord) error {
	query := `
		INSERT INTO session_steps (
			session_id, plan_kind, step_index, step_kind, status,
			tx_hash, reason, pair, token_a, token_b, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		rec.SessionID,
		rec.PlanKind,
		uint8(rec.StepIndex),
		rec.StepKind,
		rec.Status,
		rec.TxHash,
		rec.Reason,
		rec.Pair,
		rec.TokenA,
		rec.TokenB,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

// RecentSteps returns up to limit records, newest first.
func (c *ClickHouseStore) RecentSteps(ctx context.Context, limit int) ([]*models.StepRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := c.conn.Query(ctx, `
		SELECT session_id, plan_kind, step_index, step_kind, status,
		       tx_hash, reason, pair, token_a, token_b, finished_at
		FROM session_steps
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []*models.StepRecord
	for rows.Next() {
		var (
			rec   models.StepRecord
			index uint8
		)
		if err := rows.Scan(
			&rec.SessionID, &rec.PlanKind, &index, &rec.StepKind, &rec.Status,
			&rec.TxHash, &rec.Reason, &rec.Pair, &rec.TokenA, &rec.TokenB, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.StepIndex = int(index)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
