/*
Package sqlite provides a SQLite-backed implementation of the jewels
storage contracts.

PURPOSE:
  Implements jewels.Store / jewels.TxStore plus the reference-data
  stores (redemption options, earn rules) and the sweep-run audit
  trail. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist for the transactions table
  - The pure-earn XOR pure-redeem shape is also enforced by a CHECK
    constraint, so even raw SQL cannot write a malformed entry
  - Corrections land as new offsetting rows

KEY TABLES:
  transactions:        Immutable ledger of all balance changes
  redemption_options:  Reward catalog (reference data)
  earn_rules:          Booking-value conversion config
  sweep_runs:          Expiry sweeper audit trail

CONCURRENCY:
  Opened in WAL mode (readers don't block, single writer). A
  sync.RWMutex serializes writers in-process; WithTx holds the write
  lock for the whole read-then-append unit, which is what the
  redemption engine's admission control relies on.

USAGE:
  store, err := sqlite.New("./data/jewels.db")
  if err != nil { ... }
  defer store.Close()
  ledger := jewels.NewLedger(store)

SEE ALSO:
  - jewels/store.go: Interface definitions
  - jewels/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/villaluz/jewels-engine/jewels"
)

// Store implements the jewels storage contracts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		earned INTEGER NOT NULL DEFAULT 0 CHECK (earned >= 0),
		redeemed INTEGER NOT NULL DEFAULT 0 CHECK (redeemed >= 0),
		reason TEXT NOT NULL,
		note TEXT,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_by_type TEXT,
		created_at TEXT NOT NULL,
		expires_at TEXT,
		CHECK ((earned > 0) <> (redeemed > 0))
	);

	-- Balance folds walk a user's sequence oldest-first (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		ON transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	-- Expiry sweeper scans lots by boundary
	CREATE INDEX IF NOT EXISTS idx_transactions_expires
		ON transactions(expires_at) WHERE expires_at IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Redemption options (reward catalog, reference data)
	CREATE TABLE IF NOT EXISTS redemption_options (
		id TEXT PRIMARY KEY,
		jewels_required INTEGER NOT NULL CHECK (jewels_required > 0),
		description TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Earn rules (booking value -> jewels conversion)
	CREATE TABLE IF NOT EXISTS earn_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		jewels_per_unit TEXT NOT NULL,
		rounding TEXT NOT NULL DEFAULT 'floor',
		expiry_days INTEGER NOT NULL DEFAULT 365,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Expiry sweep audit trail
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		users_scanned INTEGER NOT NULL DEFAULT 0,
		lots_expired INTEGER NOT NULL DEFAULT 0,
		invalidated INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (jewels.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx jewels.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx jewels.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions
		(id, user_id, earned, redeemed, reason, note, reference_id,
		 idempotency_key, created_by, created_by_type, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var expiresAt sql.NullString
	if tx.ExpiresAt != nil {
		expiresAt = sql.NullString{String: tx.ExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		int64(tx.Earned),
		int64(tx.Redeemed),
		tx.Reason,
		nullString(tx.Note),
		nullString(tx.ReferenceID),
		nullString(tx.IdempotencyKey),
		nullString(tx.CreatedBy),
		nullString(tx.CreatedByType),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		expiresAt,
	)

	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return jewels.ErrDuplicateIdempotencyKey
		case isCheckConstraintError(err):
			return jewels.ErrInvalidTransaction
		default:
			return fmt.Errorf("%w: append: %v", jewels.ErrStorageUnavailable, err)
		}
	}
	return nil
}

// ListByUser returns all of a user's transactions, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID jewels.UserID) ([]jewels.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listByUser(ctx, s.db, userID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const txColumns = `id, user_id, earned, redeemed, reason, note, reference_id,
	idempotency_key, created_by, created_by_type, created_at, expires_at`

func (s *Store) listByUser(ctx context.Context, db querier, userID jewels.UserID) ([]jewels.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var transactions []jewels.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// Get returns a transaction by ID.
func (s *Store) Get(ctx context.Context, id jewels.TransactionID) (jewels.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, db querier, id jewels.TransactionID) (jewels.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return jewels.Transaction{}, fmt.Errorf("%w: get: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return jewels.Transaction{}, err
		}
		return jewels.Transaction{}, jewels.ErrTransactionNotFound
	}
	return scanTransaction(rows)
}

// Users returns the distinct user IDs present in the ledger.
func (s *Store) Users(ctx context.Context) ([]jewels.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM transactions ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("%w: users: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var users []jewels.UserID
	for rows.Next() {
		var u jewels.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: exists: %v", jewels.ErrStorageUnavailable, err)
	}
	return count > 0, nil
}

func scanTransaction(rows *sql.Rows) (jewels.Transaction, error) {
	var (
		tx             jewels.Transaction
		earned         int64
		redeemed       int64
		note           sql.NullString
		referenceID    sql.NullString
		idempotencyKey sql.NullString
		createdBy      sql.NullString
		createdByType  sql.NullString
		createdAt      string
		expiresAt      sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.UserID, &earned, &redeemed, &tx.Reason,
		&note, &referenceID, &idempotencyKey, &createdBy, &createdByType,
		&createdAt, &expiresAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Earned = jewels.Jewels(earned)
	tx.Redeemed = jewels.Jewels(redeemed)
	tx.Note = note.String
	tx.ReferenceID = referenceID.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedByType = createdByType.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err == nil {
			tx.ExpiresAt = &t
		}
	}
	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (jewels.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction, holding the write
// lock for the whole unit. If fn returns an error, everything it wrote
// is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(store jewels.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", jewels.ErrStorageUnavailable, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, tx jewels.Transaction) error {
	return ts.parent.appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) ListByUser(ctx context.Context, userID jewels.UserID) ([]jewels.Transaction, error) {
	return ts.parent.listByUser(ctx, ts.tx, userID)
}

func (ts *txStore) Get(ctx context.Context, id jewels.TransactionID) (jewels.Transaction, error) {
	return ts.parent.get(ctx, ts.tx, id)
}

func (ts *txStore) Users(ctx context.Context) ([]jewels.UserID, error) {
	rows, err := ts.tx.QueryContext(ctx, "SELECT DISTINCT user_id FROM transactions ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("%w: users: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var users []jewels.UserID
	for rows.Next() {
		var u jewels.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// REDEMPTION OPTIONS (jewels.OptionCatalog interface)
// =============================================================================

// SaveOption inserts or updates a redemption option.
func (s *Store) SaveOption(ctx context.Context, option jewels.RedemptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO redemption_options (id, jewels_required, description, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			jewels_required = excluded.jewels_required,
			description = excluded.description,
			active = excluded.active
	`
	createdAt := option.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		option.ID, int64(option.JewelsRequired), option.Description,
		option.Active, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save option: %v", jewels.ErrStorageUnavailable, err)
	}
	return nil
}

// GetOption retrieves a redemption option by ID.
func (s *Store) GetOption(ctx context.Context, id jewels.OptionID) (jewels.RedemptionOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		o         jewels.RedemptionOption
		required  int64
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, jewels_required, description, active, created_at FROM redemption_options WHERE id = ?",
		id,
	).Scan(&o.ID, &required, &o.Description, &o.Active, &createdAt)
	if err == sql.ErrNoRows {
		return jewels.RedemptionOption{}, jewels.ErrOptionNotFound
	}
	if err != nil {
		return jewels.RedemptionOption{}, fmt.Errorf("%w: get option: %v", jewels.ErrStorageUnavailable, err)
	}
	o.JewelsRequired = jewels.Jewels(required)
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return o, nil
}

// ListOptions returns all redemption options, active ones first.
func (s *Store) ListOptions(ctx context.Context) ([]jewels.RedemptionOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, jewels_required, description, active, created_at FROM redemption_options ORDER BY active DESC, id")
	if err != nil {
		return nil, fmt.Errorf("%w: list options: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var options []jewels.RedemptionOption
	for rows.Next() {
		var (
			o         jewels.RedemptionOption
			required  int64
			createdAt string
		)
		if err := rows.Scan(&o.ID, &required, &o.Description, &o.Active, &createdAt); err != nil {
			return nil, err
		}
		o.JewelsRequired = jewels.Jewels(required)
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		options = append(options, o)
	}
	return options, rows.Err()
}

// =============================================================================
// EARN RULES (jewels.RuleStore interface)
// =============================================================================

// SaveRule inserts or updates an earn rule. Activating a rule
// deactivates the others: at most one rule is active.
func (s *Store) SaveRule(ctx context.Context, rule jewels.EarnRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", jewels.ErrStorageUnavailable, err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if rule.Active {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE earn_rules SET active = FALSE, updated_at = ? WHERE id <> ?",
			now, rule.ID,
		); err != nil {
			return fmt.Errorf("%w: save rule: %v", jewels.ErrStorageUnavailable, err)
		}
	}

	query := `
		INSERT INTO earn_rules (id, name, jewels_per_unit, rounding, expiry_days, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			jewels_per_unit = excluded.jewels_per_unit,
			rounding = excluded.rounding,
			expiry_days = excluded.expiry_days,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err = sqlTx.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.JewelsPerUnit.String(), string(rule.Rounding),
		rule.ExpiryDays, rule.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: save rule: %v", jewels.ErrStorageUnavailable, err)
	}
	return sqlTx.Commit()
}

// ActiveRule returns the active earn rule.
func (s *Store) ActiveRule(ctx context.Context) (jewels.EarnRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, jewels_per_unit, rounding, expiry_days, active, created_at, updated_at FROM earn_rules WHERE active = TRUE LIMIT 1")
	if err != nil {
		return jewels.EarnRule{}, fmt.Errorf("%w: active rule: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return jewels.EarnRule{}, err
		}
		return jewels.EarnRule{}, jewels.ErrRuleNotFound
	}
	return scanRule(rows)
}

// ListRules returns all earn rules.
func (s *Store) ListRules(ctx context.Context) ([]jewels.EarnRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, jewels_per_unit, rounding, expiry_days, active, created_at, updated_at FROM earn_rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: list rules: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var rules []jewels.EarnRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(rows *sql.Rows) (jewels.EarnRule, error) {
	var (
		rule      jewels.EarnRule
		perUnit   string
		rounding  string
		createdAt string
		updatedAt string
	)
	err := rows.Scan(&rule.ID, &rule.Name, &perUnit, &rounding,
		&rule.ExpiryDays, &rule.Active, &createdAt, &updatedAt)
	if err != nil {
		return jewels.EarnRule{}, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.JewelsPerUnit, err = decimal.NewFromString(perUnit)
	if err != nil {
		return jewels.EarnRule{}, fmt.Errorf("bad jewels_per_unit %q: %w", perUnit, err)
	}
	rule.Rounding = jewels.RoundingMode(rounding)
	rule.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rule.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rule, nil
}

// =============================================================================
// SWEEP RUNS (jewels.SweepRecorder interface)
// =============================================================================

// RecordSweep persists a sweep run.
func (s *Store) RecordSweep(ctx context.Context, run jewels.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, started_at, completed_at, users_scanned, lots_expired, invalidated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.UsersScanned, run.LotsExpired, run.Invalidated,
	)
	if err != nil {
		return fmt.Errorf("%w: record sweep: %v", jewels.ErrStorageUnavailable, err)
	}
	return nil
}

// ListSweeps returns the most recent sweep runs, newest first.
func (s *Store) ListSweeps(ctx context.Context, limit int) ([]jewels.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, users_scanned, lots_expired, invalidated
		FROM sweep_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sweeps: %v", jewels.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var runs []jewels.SweepRun
	for rows.Next() {
		var (
			run       jewels.SweepRun
			startedAt string
			completed string
		)
		if err := rows.Scan(&run.ID, &startedAt, &completed,
			&run.UsersScanned, &run.LotsExpired, &run.Invalidated); err != nil {
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
