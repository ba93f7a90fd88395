// Package sqldb is the relational store for query logs, course metadata,
// ingested chunk mirrors and ingestion jobs. It runs on sqlite3 by default
// and on postgres through pgx when configured.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/pkg/logger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type Client struct {
	db      *sql.DB
	dialect dialect
}

// NewClient opens the database named by driver ("sqlite3", "pgx" or
// "postgres") and dsn.
func NewClient(driver, dsn string) (*Client, error) {
	var d dialect
	switch driver {
	case "", "sqlite3", "sqlite":
		driver = "sqlite3"
		d = dialectSQLite
	case "pgx", "postgres", "postgresql":
		driver = "pgx"
		d = dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == dialectSQLite {
		// One connection keeps :memory: databases shared and serializes
		// writers, which sqlite needs anyway.
		db.SetMaxOpenConns(1)

		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if dsn != ":memory:" {
			if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
			}
		}
	}

	logger.Info("Database client initialized", zap.String("driver", driver))

	return &Client{db: db, dialect: d}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if c.dialect == dialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS query_logs (
			id ` + idColumn + `,
			user_id TEXT,
			course_id TEXT NOT NULL,
			query_text TEXT NOT NULL,
			response_text TEXT,
			confidence REAL,
			response_time_ms BIGINT,
			mode TEXT,
			user_rating INTEGER,
			feedback_comment TEXT,
			created_at BIGINT NOT NULL,
			rated_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_course ON query_logs(course_id)`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs(created_at)`,

		`CREATE TABLE IF NOT EXISTS courses (
			course_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			instructor_name TEXT,
			language TEXT,
			difficulty TEXT,
			video_count INTEGER,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS content_chunks (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			media_locator TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_time REAL,
			end_time REAL,
			topic TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_course ON content_chunks(course_id)`,

		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			status TEXT NOT NULL,
			locators TEXT,
			total_items INTEGER NOT NULL,
			processed_items INTEGER NOT NULL DEFAULT 0,
			failed_items INTEGER NOT NULL DEFAULT 0,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_course ON ingestion_jobs(course_id)`,
	}

	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logger.Info("Database schema initialized")
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (c *Client) rebind(query string) string {
	if c.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.db.ExecContext(ctx, c.rebind(query), args...)
	return res, mapError(err)
}

func (c *Client) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.rebind(query), args...)
}

func (c *Client) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	return rows, mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
