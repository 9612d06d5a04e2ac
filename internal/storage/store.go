// Package storage adapts database/sql ledger stores to the per-request
// session contract of the query engine.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/logger"
)

// ColumnLister reads a table's column names, in table order, over conn.
type ColumnLister func(ctx context.Context, conn *sql.Conn, schemaName, table string) ([]string, error)

// Store hands out one pooled connection per request.
type Store struct {
	db          *sql.DB
	driver      string
	listColumns ColumnLister
	log         *zap.Logger
}

func NewStore(db *sql.DB, driver string, lister ColumnLister) *Store {
	return &Store{
		db:          db,
		driver:      driver,
		listColumns: lister,
		log:         logger.Named("store").With(zap.String("driver", driver)),
	}
}

func (s *Store) Acquire(ctx context.Context) (query.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s connection: %w", s.driver, err)
	}
	return &Session{conn: conn, listColumns: s.listColumns, log: s.log}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Session is a single connection. It is not safe for concurrent statements.
type Session struct {
	conn        *sql.Conn
	listColumns ColumnLister
	log         *zap.Logger
}

func (s *Session) ListColumns(ctx context.Context, schemaName, table string) ([]string, error) {
	cols, err := s.listColumns(ctx, s.conn, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return cols, nil
}

func (s *Session) Execute(ctx context.Context, sqlText string) (models.ResultSet, error) {
	rows, err := s.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return models.ResultSet{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	rs, err := ScanRows(rows)
	if err != nil {
		return models.ResultSet{}, err
	}
	s.log.Debug("Statement executed", zap.Int("rows", rs.Len()))
	return rs, nil
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// ScanRows reads every row into a ResultSet whose columns follow the
// statement's select list. Text returned as []byte is converted to string.
func ScanRows(rows *sql.Rows) (models.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return models.ResultSet{}, fmt.Errorf("failed to read columns: %w", err)
	}

	rs := models.ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.ResultSet{}, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return models.ResultSet{}, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rs, nil
}
