package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema is compiled into the binary at build time so schema init
// works without shipping .sql files next to the executable.
//
//go:embed schema_sqlite.sql
var sqliteSchema string

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and initializes the
// schema. WAL keeps readers off the single writer's back.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Printf("[Store] SQLite ready at %s", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) ConsumeQuota(ctx context.Context, identity, kind, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}

	// The WHERE on the upsert keeps the increment from ever passing the
	// limit, so a denied request consumes nothing.
	consumeSQL := `
		INSERT INTO daily_usage (identity, kind, day, count) VALUES (?, ?, ?, 1)
		ON CONFLICT (identity, kind, day) DO UPDATE SET count = daily_usage.count + 1
		WHERE daily_usage.count < ?
		RETURNING count;
	`
	var count int
	err := s.db.QueryRowContext(ctx, consumeSQL, identity, kind, day, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to consume quota: %v", err)
	}
	return count, true, nil
}

func (s *SQLiteStore) GetUsage(ctx context.Context, identity, kind, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE identity = ? AND kind = ? AND day = ?`,
		identity, kind, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %v", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListUsage(ctx context.Context, day string) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, kind, day, count FROM daily_usage WHERE day = ? ORDER BY count DESC`, day)
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

func (s *SQLiteStore) PurgeStaleUsage(ctx context.Context, today string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE day <> ?`, today)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale usage: %v", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) RecordPayment(ctx context.Context, p PaymentRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (reference, payer, scheme, amount_usd, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING;
	`, p.Reference, p.Payer, p.Scheme, p.AmountUSD, p.ReceivedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record payment: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentExists
	}
	return nil
}

func (s *SQLiteStore) SaveScan(ctx context.Context, rec ScanRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_log (id, mint, requester, deployer, score, verdict, token_count, duration_ms, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, rec.ID, rec.Mint, rec.Requester, rec.Deployer, rec.Score, rec.Verdict, rec.TokenCount, rec.DurationMs, rec.ScannedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save scan: %v", err)
	}
	return nil
}

func (s *SQLiteStore) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mint, requester, deployer, score, verdict, token_count, duration_ms, scanned_at
		FROM scan_log ORDER BY scanned_at DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent scans: %v", err)
	}
	defer rows.Close()

	scans := make([]ScanRecord, 0)
	for rows.Next() {
		var rec ScanRecord
		var scannedAt int64
		if err := rows.Scan(&rec.ID, &rec.Mint, &rec.Requester, &rec.Deployer,
			&rec.Score, &rec.Verdict, &rec.TokenCount, &rec.DurationMs, &scannedAt); err != nil {
			return nil, err
		}
		rec.ScannedAt = time.Unix(scannedAt, 0)
		scans = append(scans, rec)
	}
	return scans, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{Verdicts: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0) FROM scan_log`).
		Scan(&stats.TotalScans, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_log WHERE scanned_at >= ?`, since.Unix()).
		Scan(&stats.ScansToday)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT verdict, COUNT(*) FROM scan_log GROUP BY verdict`)
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

func (s *SQLiteStore) UpsertDeployerTokens(ctx context.Context, tokens []DeployerToken) error {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Unverified results must not erase known state, so alive and the
	// metadata columns fall back to the stored value. The peak only grows.
	upsertSQL := `
		INSERT INTO deployer_tokens (deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (deployer, mint) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), deployer_tokens.name),
			symbol = COALESCE(NULLIF(excluded.symbol, ''), deployer_tokens.symbol),
			created_at = COALESCE(excluded.created_at, deployer_tokens.created_at),
			alive = COALESCE(excluded.alive, deployer_tokens.alive),
			peak_liquidity_usd = MAX(excluded.peak_liquidity_usd, deployer_tokens.peak_liquidity_usd),
			last_checked = excluded.last_checked;
	`
	for _, token := range tokens {
		_, err = tx.ExecContext(ctx, upsertSQL,
			token.Deployer, token.Mint, token.Name, token.Symbol,
			nullableUnix(token.CreatedAt), nullableFlag(token.Alive),
			token.PeakLiquidityUSD, token.LastChecked.Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert deployer token %s: %v", token.Mint, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeployerTokens(ctx context.Context, deployer string) ([]DeployerToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked
		FROM deployer_tokens WHERE deployer = ?;
	`, deployer)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployer tokens: %v", err)
	}
	defer rows.Close()
	return scanSQLiteTokens(rows)
}

func (s *SQLiteStore) StaleAliveTokens(ctx context.Context, checkedBefore time.Time, limit int) ([]DeployerToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT deployer, mint, name, symbol, created_at, alive, peak_liquidity_usd, last_checked
		FROM deployer_tokens
		WHERE alive = 1 AND last_checked < ?
		ORDER BY last_checked ASC LIMIT ?;
	`, checkedBefore.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tokens: %v", err)
	}
	defer rows.Close()
	return scanSQLiteTokens(rows)
}

func (s *SQLiteStore) UpdateTokenLiveness(ctx context.Context, mint string, alive bool, liquidityUSD float64, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deployer_tokens
		SET alive = ?, peak_liquidity_usd = MAX(peak_liquidity_usd, ?), last_checked = ?
		WHERE mint = ?;
	`, boolToInt(alive), liquidityUSD, checkedAt.Unix(), mint)
	if err != nil {
		return fmt.Errorf("failed to update token liveness: %v", err)
	}
	return nil
}

func scanSQLiteTokens(rows *sql.Rows) ([]DeployerToken, error) {
	tokens := make([]DeployerToken, 0)
	for rows.Next() {
		var token DeployerToken
		var createdAt, alive sql.NullInt64
		var lastChecked int64
		if err := rows.Scan(&token.Deployer, &token.Mint, &token.Name, &token.Symbol,
			&createdAt, &alive, &token.PeakLiquidityUSD, &lastChecked); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			t := time.Unix(createdAt.Int64, 0)
			token.CreatedAt = &t
		}
		if alive.Valid {
			b := alive.Int64 != 0
			token.Alive = &b
		}
		token.LastChecked = time.Unix(lastChecked, 0)
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableFlag(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
