package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/storage"
	"github.com/ledgerlens/backend/pkg/logger"
)

const driverName = "sqlite3"

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Store() *storage.Store {
	return storage.NewStore(c.db, driverName, ListColumns)
}

// ListColumns reads the table's columns in declaration order. schemaName
// names an attached database and defaults to main.
func ListColumns(ctx context.Context, conn *sql.Conn, schemaName, table string) ([]string, error) {
	if schemaName == "" {
		schemaName = "main"
	}
	rows, err := conn.QueryContext(ctx, "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", table, schemaName)
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
	return cols, rows.Err()
}

// InitSchema creates the ledger table the assistant queries when it does not
// exist yet. Real deployments usually point at an existing table.
func (c *Client) InitSchema(table string) error {
	ident := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		COMPANY_ID INTEGER NOT NULL,
		FISCAL_YEAR INTEGER,
		PER_END_DATE TEXT NOT NULL,
		TRANSACTION_DATE TEXT,
		ACCOUNT_NUMBER TEXT,
		ACCOUNT_NAME TEXT,
		EXPENSE_CATEGORY TEXT,
		COST_CENTER TEXT,
		VENDOR_NAME TEXT,
		WELL_NAME TEXT,
		INVOICE_NUMBER TEXT,
		DESCRIPTION TEXT,
		ANNOTATION TEXT,
		AMOUNT REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS "idx_ledger_period" ON %[1]s(PER_END_DATE);
	CREATE INDEX IF NOT EXISTS "idx_ledger_vendor" ON %[1]s(VENDOR_NAME);
	CREATE INDEX IF NOT EXISTS "idx_ledger_account" ON %[1]s(ACCOUNT_NAME);
	`, ident)

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized", zap.String("table", table))
	return nil
}

// Entry is one ledger line for seeding a local database.
type Entry struct {
	CompanyID   int
	PeriodEnd   string
	Vendor      string
	Account     string
	Description string
	Annotation  string
	Amount      float64
}

func (c *Client) InsertEntries(ctx context.Context, table string, entries []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ident := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(COMPANY_ID, PER_END_DATE, VENDOR_NAME, ACCOUNT_NAME, DESCRIPTION, ANNOTATION, AMOUNT)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`, ident))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.CompanyID, e.PeriodEnd, e.Vendor, e.Account, e.Description, e.Annotation, e.Amount); err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}
	return tx.Commit()
}
