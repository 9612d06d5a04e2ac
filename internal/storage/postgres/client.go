// Package postgres serves the ledger from a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/storage"
	"github.com/ledgerlens/backend/pkg/logger"
)

const driverName = "postgres"

const listColumnsQuery = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

type Client struct {
	db *sql.DB
}

func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("PostgreSQL client initialized")

	return NewFromDB(db), nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Store() *storage.Store {
	return storage.NewStore(c.db, driverName, ListColumns)
}

// ListColumns reads column names from information_schema. An empty
// schemaName means public.
func ListColumns(ctx context.Context, conn *sql.Conn, schemaName, table string) ([]string, error) {
	if schemaName == "" {
		schemaName = "public"
	}
	rows, err := conn.QueryContext(ctx, listColumnsQuery, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.Debug("Catalog loaded",
		zap.String("schema", schemaName),
		zap.String("table", table),
		zap.Int("columns", len(cols)),
	)
	return cols, nil
}
