package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lending-snapshots/internal/snapshot"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `
    CREATE TABLE IF NOT EXISTS fetch_sessions (
        id            UUID PRIMARY KEY,
        network       TEXT        NOT NULL,
        window_start  TIMESTAMPTZ NOT NULL,
        window_end    TIMESTAMPTZ NOT NULL,
        cursor_block  BIGINT      NOT NULL,
        snapshot_rows INTEGER     NOT NULL,
        rate_rows     INTEGER     NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS market_snapshots (
        session_id                      UUID   NOT NULL REFERENCES fetch_sessions(id) ON DELETE CASCADE,
        row_num                         INTEGER NOT NULL,
        day                             DATE   NOT NULL,
        asset                           TEXT   NOT NULL,
        tvl_usd                         BIGINT NOT NULL,
        daily_deposit_usd               BIGINT NOT NULL,
        daily_withdraw_usd              BIGINT NOT NULL,
        daily_borrow_usd                BIGINT NOT NULL,
        daily_liquidate_usd             BIGINT NOT NULL,
        daily_repay_usd                 BIGINT NOT NULL,
        daily_supply_side_revenue_usd   DOUBLE PRECISION NOT NULL,
        daily_protocol_side_revenue_usd DOUBLE PRECISION NOT NULL,
        PRIMARY KEY (session_id, row_num)
    );
    CREATE TABLE IF NOT EXISTS rate_observations (
        session_id UUID    NOT NULL REFERENCES fetch_sessions(id) ON DELETE CASCADE,
        row_num    INTEGER NOT NULL,
        day        DATE    NOT NULL,
        rate_type  TEXT    NOT NULL,
        asset      TEXT    NOT NULL,
        rate       DOUBLE PRECISION NOT NULL,
        PRIMARY KEY (session_id, row_num)
    );`

	insertSessionSQL = `INSERT INTO fetch_sessions (
        id,
        network,
        window_start,
        window_end,
        cursor_block,
        snapshot_rows,
        rate_rows
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING created_at;`

	listRecentSessionsSQL = `SELECT
        id,
        network,
        window_start,
        window_end,
        cursor_block,
        snapshot_rows,
        rate_rows,
        created_at
    FROM fetch_sessions
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteSessionsBeforeSQL = `DELETE FROM fetch_sessions WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

var (
	metricColumns = []string{
		"session_id", "row_num", "day", "asset", "tvl_usd",
		"daily_deposit_usd", "daily_withdraw_usd", "daily_borrow_usd",
		"daily_liquidate_usd", "daily_repay_usd",
		"daily_supply_side_revenue_usd", "daily_protocol_side_revenue_usd",
	}
	rateColumns = []string{"session_id", "row_num", "day", "rate_type", "asset", "rate"}
)

// SessionStore persists the output of fetch sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *Session, tables snapshot.Tables) error
	ListRecentSessions(ctx context.Context, limit int) ([]Session, error)
}

// AdvisoryLocker guards a job so only one process runs it at a time.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// Store aggregates access to persisted sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSession writes the session row and both tables in one transaction.
// session.CreatedAt is filled from the database.
func (s *Store) SaveSession(ctx context.Context, session *Session, tables snapshot.Tables) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, insertSessionSQL,
		session.ID,
		session.Network,
		session.WindowStart,
		session.WindowEnd,
		session.Cursor,
		session.SnapshotRows,
		session.RateRows,
	).Scan(&session.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"market_snapshots"}, metricColumns, pgx.CopyFromRows(metricRows(session, tables.Metrics))); err != nil {
		return fmt.Errorf("copy market snapshots: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"rate_observations"}, rateColumns, pgx.CopyFromRows(rateRows(session, tables.Rates))); err != nil {
		return fmt.Errorf("copy rate observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// ListRecentSessions lists the most recent sessions, newest first.
func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]Session, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSessionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent sessions: %w", queryErr)
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		var rec Session
		if err := rows.Scan(
			&rec.ID,
			&rec.Network,
			&rec.WindowStart,
			&rec.WindowEnd,
			&rec.Cursor,
			&rec.SnapshotRows,
			&rec.RateRows,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sessions, nil
}

// DeleteSessionsBefore removes sessions (and their rows) older than the cutoff.
func (s *Store) DeleteSessionsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSessionsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete sessions before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// TryAdvisoryLock takes a session-level advisory lock on a dedicated connection.
// The returned func releases it; acquired is false when another session holds the key.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlockCtx, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func metricRows(session *Session, rows []snapshot.MetricRow) [][]any {
	out := make([][]any, 0, len(rows))
	for i, m := range rows {
		out = append(out, []any{
			session.ID,
			int32(i),
			m.Day,
			m.Asset,
			m.TVL,
			m.DailyDepositUSD,
			m.DailyWithdrawUSD,
			m.DailyBorrowUSD,
			m.DailyLiquidateUSD,
			m.DailyRepayUSD,
			m.DailySupplySideRevenueUSD,
			m.DailyProtocolSideRevenueUSD,
		})
	}
	return out
}

func rateRows(session *Session, rows []snapshot.RateRow) [][]any {
	out := make([][]any, 0, len(rows))
	for i, r := range rows {
		out = append(out, []any{session.ID, int32(i), r.Day, r.Type, r.Asset, r.Rate})
	}
	return out
}

var (
	_ SessionStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
