package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/internal/checkout/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

var _ RepoInterface = (*Repository)(nil)

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT data FROM checkout_sessions WHERE session_id = $1 AND storage = $2`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, sessionID, domain.StorageName).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout session: %w", err)
	}

	var p domain.Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	s := domain.FromPersisted(p)
	return &s, nil
}

func (r *Repository) SaveSession(ctx context.Context, sessionID string, session domain.Session) error {
	data, err := json.Marshal(session.Persisted())
	if err != nil {
		return fmt.Errorf("marshal checkout session: %w", err)
	}

	query := `INSERT INTO checkout_sessions (session_id, storage, data, created_at, updated_at)
	          VALUES ($1, $2, $3, NOW(), NOW())
	          ON CONFLICT (session_id, storage) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, sessionID, domain.StorageName, data); err != nil {
		return fmt.Errorf("upsert checkout session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM checkout_sessions WHERE session_id = $1 AND storage = $2`
	if _, err := r.db.ExecContext(ctx, query, sessionID, domain.StorageName); err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}
	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertOrder := `INSERT INTO orders (id, idempotency_key, session_id, total_amount, currency, payload, placed_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, insertOrder,
		order.ID,
		order.IdempotencyKey,
		order.SessionID,
		order.Summary.Total,
		order.Summary.Currency,
		payload,
		order.PlacedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			_ = tx.Rollback()
			existing, lookupErr := r.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
			if lookupErr != nil {
				return "", lookupErr
			}
			return existing, ErrDuplicateOrder
		}
		return "", fmt.Errorf("insert order: %w", err)
	}

	insertEvent := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, insertEvent, order.ID, EventOrderPlaced, payload); err != nil {
		return "", fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit order transaction: %w", err)
	}
	return order.ID, nil
}

func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE idempotency_key = $1`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query order by idempotency key: %w", err)
	}
	return id, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
