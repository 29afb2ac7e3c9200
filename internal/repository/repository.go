// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle for read-only reporting queries.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

const snapshotColumns = `
	id, withdrawal_id, client_id, amount, currency, requested_at,
	classification, turnover, turnover_error, risk, policy_id, verdicts,
	decision, reason, evaluated_at, external_state, created_at, updated_at`

// CreateSnapshot inserts s once per withdrawal. A concurrent or repeated insert
// loses the race silently and gets the stored snapshot back.
func (r *SQLRepository) CreateSnapshot(ctx context.Context, s *domain.Snapshot) (*domain.Snapshot, bool, error) {
	if s == nil || s.WithdrawalID == "" {
		return nil, false, fmt.Errorf("%w: withdrawalID is required", ErrInvalidInput)
	}
	if s.Decision.Value == "" {
		return nil, false, fmt.Errorf("%w: decision is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	if s.ExternalState == "" {
		s.ExternalState = domain.StateNew
	}

	classification, err := json.Marshal(s.Classification)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode classification: %w", err)
	}
	verdicts, err := json.Marshal(s.Verdicts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode verdicts: %w", err)
	}
	turnover, err := marshalOptional(s.Turnover)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode turnover: %w", err)
	}
	risk, err := marshalOptional(s.Risk)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode risk: %w", err)
	}

	query := `
		INSERT INTO snapshots (` + snapshotColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(withdrawal_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, s.WithdrawalID, s.ClientID, s.Amount, s.Currency, s.RequestedAt.UTC(),
		string(classification), turnover, s.TurnoverError, risk, s.PolicyID, string(verdicts),
		string(s.Decision.Value), s.Decision.Reason, s.Decision.EvaluatedAt.UTC(),
		string(s.ExternalState), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return s, true, nil
	}

	existing, err := r.GetSnapshot(ctx, s.WithdrawalID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrPersistenceConflict, err)
	}
	return existing, false, nil
}

// GetSnapshot retrieves the snapshot of a withdrawal.
func (r *SQLRepository) GetSnapshot(ctx context.Context, withdrawalID string) (*domain.Snapshot, error) {
	if withdrawalID == "" {
		return nil, fmt.Errorf("%w: withdrawalID is required", ErrInvalidInput)
	}

	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE withdrawal_id = ?`

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, r.rebind(query), withdrawalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ExistingSnapshots returns the stored snapshots among withdrawalIDs, keyed by withdrawal id.
func (r *SQLRepository) ExistingSnapshots(ctx context.Context, withdrawalIDs []string) (map[string]*domain.Snapshot, error) {
	out := make(map[string]*domain.Snapshot)
	if len(withdrawalIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(withdrawalIDs)), ", ")
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE withdrawal_id IN (` + placeholders + `)`

	args := make([]any, len(withdrawalIDs))
	for i, id := range withdrawalIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out[s.WithdrawalID] = s
	}
	return out, rows.Err()
}

// UpdateSnapshotState mirrors the vendor lifecycle without touching decision fields.
func (r *SQLRepository) UpdateSnapshotState(ctx context.Context, withdrawalID string, state domain.WithdrawalState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidInput, state)
	}

	query := `
		UPDATE snapshots
		SET external_state = ?, updated_at = ?
		WHERE withdrawal_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(state), time.Now().UTC(), withdrawalID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// CountSnapshotsByClient counts withdrawals of a client requested in [since, until).
func (r *SQLRepository) CountSnapshotsByClient(ctx context.Context, clientID string, since, until time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM snapshots WHERE client_id = ? AND requested_at >= ? AND requested_at < ?`

	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), clientID, since.UTC(), until.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// SaveDecisionRecord appends an audit row.
func (r *SQLRepository) SaveDecisionRecord(ctx context.Context, rec *domain.DecisionRecord) error {
	if rec == nil || rec.WithdrawalID == "" {
		return fmt.Errorf("%w: withdrawalID is required", ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (id, withdrawal_id, decision, reason, live, payout_ref, payout_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.WithdrawalID, string(rec.Decision), rec.Reason, boolInt(rec.Live),
		rec.PayoutRef, rec.PayoutError, rec.CreatedAt.UTC(),
	)
	return err
}

// ListDecisionRecords returns the audit trail of a withdrawal, oldest first.
func (r *SQLRepository) ListDecisionRecords(ctx context.Context, withdrawalID string) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT id, withdrawal_id, decision, reason, live, payout_ref, payout_error, created_at
		FROM decisions
		WHERE withdrawal_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), withdrawalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var decision string
		var live int
		if err := rows.Scan(
			&rec.ID, &rec.WithdrawalID, &decision, &rec.Reason, &live,
			&rec.PayoutRef, &rec.PayoutError, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Decision = domain.DecisionValue(decision)
		rec.Live = live == 1
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*domain.Snapshot, error) {
	var s domain.Snapshot
	var classification, turnover, risk, verdicts, decision, state string

	if err := row.Scan(
		&s.ID, &s.WithdrawalID, &s.ClientID, &s.Amount, &s.Currency, &s.RequestedAt,
		&classification, &turnover, &s.TurnoverError, &risk, &s.PolicyID, &verdicts,
		&decision, &s.Decision.Reason, &s.Decision.EvaluatedAt, &state, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Decision.Value = domain.DecisionValue(decision)
	s.ExternalState = domain.WithdrawalState(state)

	if err := json.Unmarshal([]byte(classification), &s.Classification); err != nil {
		return nil, fmt.Errorf("failed to parse classification of %s: %w", s.WithdrawalID, err)
	}
	if err := json.Unmarshal([]byte(verdicts), &s.Verdicts); err != nil {
		return nil, fmt.Errorf("failed to parse verdicts of %s: %w", s.WithdrawalID, err)
	}
	if turnover != "" {
		s.Turnover = &domain.TurnoverReport{}
		if err := json.Unmarshal([]byte(turnover), s.Turnover); err != nil {
			return nil, fmt.Errorf("failed to parse turnover of %s: %w", s.WithdrawalID, err)
		}
	}
	if risk != "" {
		s.Risk = &domain.RiskFinding{}
		if err := json.Unmarshal([]byte(risk), s.Risk); err != nil {
			return nil, fmt.Errorf("failed to parse risk of %s: %w", s.WithdrawalID, err)
		}
	}
	return &s, nil
}

func marshalOptional[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
