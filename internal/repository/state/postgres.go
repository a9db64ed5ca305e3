package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PGConfig struct {
	URL               string        `mapstructure:"dsn"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps snapshots in a single jsonb table keyed by kind.
// Same single-writer contract as the file store; the table is just a
// durable place to put the documents.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	log          *zap.Logger
}

const (
	qStateGet = `SELECT snapshot FROM monitor_state WHERE kind = $1;`

	qStatePut = `
INSERT INTO monitor_state (kind, snapshot, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (kind) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW();
`
)

func NewPostgresStore(ctx context.Context, cfg PGConfig, log *zap.Logger) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(hctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &PostgresStore{
		pool:         pool,
		queryTimeout: cfg.QueryTimeout,
		log:          log.With(zap.String("component", "state.postgres")),
	}, nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *PostgresStore) Load(ctx context.Context, kind Kind, out any) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var raw []byte
	if err := s.pool.QueryRow(ctx, qStateGet, string(kind)).Scan(&raw); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn("state query failed, using defaults",
				zap.String("kind", string(kind)), zap.Error(err))
		}
		return false
	}
	if err := decodeInto(raw, out); err != nil {
		s.log.Warn("state unparsable, using defaults",
			zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	return true
}

func (s *PostgresStore) Save(ctx context.Context, kind Kind, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, qStatePut, string(kind), b); err != nil {
		return fmt.Errorf("upsert %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }
