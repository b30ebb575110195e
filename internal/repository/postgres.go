package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresLedger хранит журнал расчётов в PostgreSQL.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger создаёт журнал и инициализирует схему БД через миграции.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &PostgresLedger{pool: pool}

	if err := l.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return l, nil
}

func (l *PostgresLedger) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(l.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

// Get возвращает запись журнала по идентификатору заказа.
func (l *PostgresLedger) Get(ctx context.Context, orderID string) (*model.Settlement, error) {
	var (
		status    string
		payload   []byte
		createdAt time.Time
	)
	err := l.pool.QueryRow(ctx,
		`SELECT status, payload, created_at FROM settlements WHERE order_id = $1`,
		orderID,
	).Scan(&status, &payload, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("select settlement: %w", err)
	}

	if model.SettlementStatus(status) == model.SettlementStatusPending || len(payload) == 0 {
		return &model.Settlement{
			OrderID:   orderID,
			Status:    model.SettlementStatus(status),
			CreatedAt: createdAt,
		}, nil
	}

	var s model.Settlement
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode settlement %s: %w", orderID, err)
	}
	return &s, nil
}

// Reserve вставляет ожидающую запись. Возвращает false, если запись по заказу уже существует.
func (l *PostgresLedger) Reserve(ctx context.Context, orderID string) (bool, error) {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO settlements (order_id, status) VALUES ($1, $2)`,
		orderID, string(model.SettlementStatusPending),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("reserve settlement: %w", err)
	}
	return true, nil
}

// Complete записывает итог расчёта. Завершённая запись не перезаписывается.
func (l *PostgresLedger) Complete(ctx context.Context, s model.Settlement) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settlement: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE settlements SET status = $2, payload = $3, created_at = $4
		 WHERE order_id = $1 AND status = $5`,
		s.OrderID, string(s.Status), payload, s.CreatedAt, string(model.SettlementStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		cmdTag, err = tx.Exec(ctx,
			`INSERT INTO settlements (order_id, status, payload, created_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (order_id) DO NOTHING`,
			s.OrderID, string(s.Status), payload, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrSettlementExists, s.OrderID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Release удаляет ожидающую запись по заказу.
func (l *PostgresLedger) Release(ctx context.Context, orderID string) error {
	_, err := l.pool.Exec(ctx,
		`DELETE FROM settlements WHERE order_id = $1 AND status = $2`,
		orderID, string(model.SettlementStatusPending),
	)
	if err != nil {
		return fmt.Errorf("release settlement: %w", err)
	}
	return nil
}
