package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/tg-dispatch/internal/delivery"
)

const deliverySchema = `
	CREATE TABLE IF NOT EXISTS deliveries (
		id          BIGSERIAL PRIMARY KEY,
		job_id      TEXT        NOT NULL,
		batch_id    TEXT,
		chat_id     TEXT        NOT NULL,
		status      TEXT        NOT NULL,
		attempts    INTEGER     NOT NULL,
		error       TEXT,
		recorded_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS deliveries_chat_id_idx ON deliveries (chat_id, recorded_at);
`

// DeliveryPostgresStore is a PostgreSQL implementation of delivery.Store.
type DeliveryPostgresStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryPostgresStore creates a new PostgreSQL-backed delivery log.
func NewDeliveryPostgresStore(pool *pgxpool.Pool) *DeliveryPostgresStore {
	return &DeliveryPostgresStore{pool: pool}
}

// EnsureSchema creates the deliveries table if it does not exist.
func (p *DeliveryPostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, deliverySchema)

	return err
}

func (p *DeliveryPostgresStore) Save(ctx context.Context, record *delivery.Record) error {
	query := `
		INSERT INTO deliveries (job_id, batch_id, chat_id, status, attempts, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.pool.Exec(ctx, query,
		record.JobID,
		nullableString(record.BatchID),
		record.ChatID,
		string(record.Status),
		record.Attempts,
		nullableString(record.Error),
		record.RecordedAt,
	)

	return err
}

// CountByStatus returns how many records of each status exist for chatID.
func (p *DeliveryPostgresStore) CountByStatus(ctx context.Context, chatID string) (map[delivery.Status]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM deliveries
		WHERE chat_id = $1
		GROUP BY status
	`

	rows, err := p.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[delivery.Status]int64)

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}

		counts[delivery.Status(status)] = count
	}

	return counts, rows.Err()
}

// Ping checks database connectivity.
func (p *DeliveryPostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Shutdown closes the connection pool.
func (p *DeliveryPostgresStore) Shutdown() error {
	p.pool.Close()

	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// Compile-time check.
var _ delivery.Store = (*DeliveryPostgresStore)(nil)
