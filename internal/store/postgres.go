package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema is compiled into the binary at build time so schema init
// works without shipping .sql files next to the executable.
//
//go:embed schema_postgres.sql
var postgresSchema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres initializes the connection pool and runs schema init.
func ConnectPostgres(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("[Store] PostgreSQL connected")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ConsumeQuota(ctx context.Context, identity, kind, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}

	consumeSQL := `
		INSERT INTO daily_usage (identity, kind, day, count) VALUES ($1, $2, $3, 1)
		ON CONFLICT (identity, kind, day) DO UPDATE SET count = daily_usage.count + 1
		WHERE daily_usage.count < $4
		RETURNING count;
	`
	var count int
	err := s.pool.QueryRow(ctx, consumeSQL, identity, kind, day, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to consume quota: %v", err)
	}
	return count, true, nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, identity, kind, day string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM daily_usage WHERE identity = $1 AND kind = $2 AND day = $3`,
		identity, kind, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %v", err)
	}
	return count, nil
}

func (s *PostgresStore) ListUsage(ctx context.Context, day string) ([]UsageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity, kind, day, count FROM daily_usage WHERE day = $1 ORDER BY count DESC`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %v", err)
	}
	defer rows.Close()

	records := make([]UsageRecord, 0)
	for rows.Next() {
		var rec UsageRecord
		if err := rows.Scan(&rec.Identity, &rec.Kind, &rec.Day, &rec.Count); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) PurgeStaleUsage(ctx context.Context, today string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM daily_usage WHERE day <> $1`, today)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale usage: %v", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RecordPayment(ctx context.Context, p PaymentRecord) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payments (reference, payer, scheme, amount_usd, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reference) DO NOTHING;
	`, p.Reference, p.Payer, p.Scheme, p.AmountUSD, p.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record payment: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentExists
	}
	return nil
}

func (s *PostgresStore) SaveScan(ctx context.Context, rec ScanRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_log (id, mint, requester, deployer, score, verdict, token_count, duration_ms, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, rec.ID, rec.Mint, rec.Requester, rec.Deployer, rec.Score, rec.Verdict, rec.TokenCount, rec.DurationMs, rec.ScannedAt)
	if err != nil {
		return fmt.Errorf("failed to save scan: %v", err)
	}
	return nil
}

func (s *PostgresStore) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, mint, requester, deployer, score, verdict, token_count, duration_ms, scanned_at
		FROM scan_log ORDER BY scanned_at DESC LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent scans: %v", err)
	}
	defer rows.Close()

	scans := make([]ScanRecord, 0)
	for rows.Next() {
		var rec ScanRecord
		if err := rows.Scan(&rec.ID, &rec.Mint, &rec.Requester, &rec.Deployer,
			&rec.Score, &rec.Verdict, &rec.TokenCount, &rec.DurationMs, &rec.ScannedAt); err != nil {
			return nil, err
		}
		scans = append(scans, rec)
	}
	return scans, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{Verdicts: make(map[string]int)}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0) FROM scan_log`).
		Scan(&stats.TotalScans, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM scan_log WHERE scanned_at >= $1`, since).
		Scan(&stats.ScansToday)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT verdict, COUNT(*) FROM scan_log GROUP BY verdict`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var verdict string
		var count int
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, err
		}
		stats.Verdicts[verdict] = count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) UpsertDeployerTokens(ctx context.Context, tokens []DeployerToken) error {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Unverified results must not erase known state, so alive and the
	// metadata columns fall back to the stored value. The peak only grows.
	upsertSQL := `
		INSERT INTO deployer_tokens (deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (deployer, mint) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), deployer_tokens.name),
			symbol = COALESCE(NULLIF(EXCLUDED.symbol, ''), deployer_tokens.symbol),
			created_at = COALESCE(EXCLUDED.created_at, deployer_tokens.created_at),
			alive = COALESCE(EXCLUDED.alive, deployer_tokens.alive),
			peak_liquidity_usd = GREATEST(EXCLUDED.peak_liquidity_usd, deployer_tokens.peak_liquidity_usd),
			last_checked = EXCLUDED.last_checked;
	`
	for _, token := range tokens {
		_, err = tx.Exec(ctx, upsertSQL,
			token.Deployer, token.Mint, token.Name, token.Symbol,
			token.CreatedAt, token.Alive, token.PeakLiquidityUSD, token.LastChecked)
		if err != nil {
			return fmt.Errorf("failed to upsert deployer token %s: %v", token.Mint, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeployerTokens(ctx context.Context, deployer string) ([]DeployerToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked
		FROM deployer_tokens WHERE deployer = $1;
	`, deployer)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployer tokens: %v", err)
	}
	defer rows.Close()
	return scanPostgresTokens(rows)
}

func (s *PostgresStore) StaleAliveTokens(ctx context.Context, checkedBefore time.Time, limit int) ([]DeployerToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked
		FROM deployer_tokens
		WHERE alive = TRUE AND last_checked < $1
		ORDER BY last_checked ASC LIMIT $2;
	`, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tokens: %v", err)
	}
	defer rows.Close()
	return scanPostgresTokens(rows)
}

func (s *PostgresStore) UpdateTokenLiveness(ctx context.Context, mint string, alive bool, liquidityUSD float64, checkedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deployer_tokens
		SET alive = $1, peak_liquidity_usd = GREATEST(peak_liquidity_usd, $2), last_checked = $3
		WHERE mint = $4;
	`, alive, liquidityUSD, checkedAt, mint)
	if err != nil {
		return fmt.Errorf("failed to update token liveness: %v", err)
	}
	return nil
}

func scanPostgresTokens(rows pgx.Rows) ([]DeployerToken, error) {
	tokens := make([]DeployerToken, 0)
	for rows.Next() {
		var token DeployerToken
		if err := rows.Scan(&token.Deployer, &token.Mint, &token.Name, &token.Symbol,
			&token.CreatedAt, &token.Alive, &token.PeakLiquidityUSD, &token.LastChecked); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
