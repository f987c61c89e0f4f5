package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/ppiankov/sanctum/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS split_records (
	origin_ref       TEXT PRIMARY KEY,
	act_id           INTEGER NOT NULL,
	proof_hash       TEXT NOT NULL,
	primary_amount   NUMERIC(20,8) NOT NULL,
	secondary_amount NUMERIC(20,8) NOT NULL,
	remainder        NUMERIC(20,8) NOT NULL,
	inscription      TEXT NOT NULL,
	primary_op_ref   TEXT NOT NULL DEFAULT '',
	primary_tx_ref   TEXT NOT NULL DEFAULT '',
	secondary_op_ref TEXT NOT NULL DEFAULT '',
	secondary_tx_ref TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
)`

// PostgresStore persists records in a single table keyed by origin ref.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, model.Transient(fmt.Errorf("ping postgres: %w", err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Get(ctx context.Context, originRef string) (*model.SplitRecord, error) {
	const query = `
		SELECT origin_ref, act_id, proof_hash, primary_amount, secondary_amount,
		       remainder, inscription, primary_op_ref, primary_tx_ref,
		       secondary_op_ref, secondary_tx_ref, status, created_at, completed_at
		FROM split_records WHERE origin_ref = $1`

	record, err := scanRecord(p.db.QueryRowContext(ctx, query, originRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get split record: %w", err)
	}
	return record, nil
}

func (p *PostgresStore) Put(ctx context.Context, record *model.SplitRecord) error {
	const query = `
		INSERT INTO split_records (origin_ref, act_id, proof_hash, primary_amount,
			secondary_amount, remainder, inscription, primary_op_ref,
			primary_tx_ref, secondary_op_ref, secondary_tx_ref, status,
			created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (origin_ref) DO UPDATE SET
			primary_op_ref   = EXCLUDED.primary_op_ref,
			primary_tx_ref   = EXCLUDED.primary_tx_ref,
			secondary_op_ref = EXCLUDED.secondary_op_ref,
			secondary_tx_ref = EXCLUDED.secondary_tx_ref,
			status           = EXCLUDED.status,
			completed_at     = EXCLUDED.completed_at`

	var completedAt sql.NullTime
	if !record.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: record.CompletedAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, query,
		record.OriginRef, record.ActID, record.ProofHash,
		record.PrimaryAmount, record.SecondaryAmount, record.Remainder,
		record.Inscription, record.PrimaryOpRef, record.PrimaryTxRef,
		record.SecondaryOpRef, record.SecondaryTxRef,
		string(record.Status), record.CreatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("put split record: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListIncomplete(ctx context.Context) ([]*model.SplitRecord, error) {
	const query = `
		SELECT origin_ref, act_id, proof_hash, primary_amount, secondary_amount,
		       remainder, inscription, primary_op_ref, primary_tx_ref,
		       secondary_op_ref, secondary_tx_ref, status, created_at, completed_at
		FROM split_records WHERE status <> $1 ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query, string(model.SplitCompleted))
	if err != nil {
		return nil, fmt.Errorf("list incomplete splits: %w", err)
	}
	defer rows.Close()

	var out []*model.SplitRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list incomplete splits: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incomplete splits: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SplitRecord, error) {
	var (
		record      model.SplitRecord
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&record.OriginRef, &record.ActID, &record.ProofHash,
		&record.PrimaryAmount, &record.SecondaryAmount, &record.Remainder,
		&record.Inscription, &record.PrimaryOpRef, &record.PrimaryTxRef,
		&record.SecondaryOpRef, &record.SecondaryTxRef,
		&status, &record.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = model.SplitStatus(status)
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time
	}
	return &record, nil
}

var _ SplitStore = (*PostgresStore)(nil)
