package sqlgen

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/intent"
)

func seedLedger(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE LEDGER_ENTRIES (
		ID INTEGER PRIMARY KEY,
		COMPANY_ID INTEGER,
		PER_END_DATE TEXT,
		VENDOR_NAME TEXT,
		ACCOUNT_NAME TEXT,
		DESCRIPTION TEXT,
		ANNOTATION TEXT,
		AMOUNT REAL
	)`)
	require.NoError(t, err)

	rows := []struct {
		company     int
		period      string
		vendor      string
		account     string
		description string
		amount      float64
	}{
		{1, "2024-01-31", "Acme Electric", "LOE", "electric pump repair", 1200},
		{1, "2024-01-31", "Acme Electric", "LOE", "electric line inspection", 300},
		{1, "2024-02-29", "Baker Pumps", "LOE", "pump rebuild", 800},
		{1, "2024-02-29", "O'Brien Services", "LOE", "electric submersible pump", 950},
		{2, "2024-02-29", "Baker Pumps", "Capex", "100% new pump", 5000},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO LEDGER_ENTRIES
			(COMPANY_ID, PER_END_DATE, VENDOR_NAME, ACCOUNT_NAME, DESCRIPTION, ANNOTATION, AMOUNT)
			VALUES (?, ?, ?, ?, ?, NULL, ?)`,
			r.company, r.period, r.vendor, r.account, r.description, r.amount)
		require.NoError(t, err)
	}
	return db
}

func ids(t *testing.T, db *sql.DB, query string) map[int64]bool {
	t.Helper()

	rows, err := db.Query(query)
	require.NoError(t, err, query)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	out := make(map[int64]bool)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out[vals[0].(int64)] = true
	}
	require.NoError(t, rows.Err())
	return out
}

func TestKeywordsNarrowMonotonically(t *testing.T) {
	db := seedLedger(t)

	one, err := Synthesize(intent.Intent{DataType: "expenses", Keywords: []string{"electric"}}, newResolver(nil), sqliteOpts())
	require.NoError(t, err)
	two, err := Synthesize(intent.Intent{DataType: "expenses", Keywords: []string{"electric", "pump"}}, newResolver(nil), sqliteOpts())
	require.NoError(t, err)

	oneIDs := ids(t, db, one.Raw)
	twoIDs := ids(t, db, two.Raw)

	assert.Len(t, oneIDs, 3)
	assert.Len(t, twoIDs, 2)
	for id := range twoIDs {
		assert.True(t, oneIDs[id], "row %d matched both keywords but not the first", id)
	}
}

func TestGeneratedQueriesExecute(t *testing.T) {
	db := seedLedger(t)

	intents := []intent.Intent{
		{DataType: "expenses", GroupBy: []string{"accounting period"}},
		{DataType: "expenses", GroupBy: []string{"vendor", "month"}, Keywords: []string{"pump"}},
		{DataType: "balances", GroupBy: []string{"account"}},
		{DataType: "expenses", Keywords: []string{"100%"}},
		{
			DataType: "expenses",
			Filters:  []intent.Filter{{Field: "vendor", Op: intent.OpEq, Values: []any{"O'Brien Services"}}},
			Exclude:  []intent.Filter{{Field: "account", Op: intent.OpNotIn, Values: []any{"Capex", "G&A"}}},
		},
	}

	for _, in := range intents {
		pair, err := Synthesize(in, newResolver(nil), sqliteOpts())
		require.NoError(t, err)

		for _, q := range []string{pair.Aggregate, pair.Raw} {
			rows, err := db.Query(q)
			require.NoError(t, err, q)
			rows.Close()
		}
	}
}

func TestSummaryTotalsByPeriod(t *testing.T) {
	db := seedLedger(t)

	in := intent.Intent{
		DataType: "expenses",
		GroupBy:  []string{"accounting period"},
		Filters:  []intent.Filter{{Field: "company", Op: intent.OpEq, Values: []any{1}}},
	}
	pair, err := Synthesize(in, newResolver(nil), sqliteOpts())
	require.NoError(t, err)

	rows, err := db.Query(pair.Aggregate)
	require.NoError(t, err)
	defer rows.Close()

	var got [][2]any
	for rows.Next() {
		var period string
		var total float64
		require.NoError(t, rows.Scan(&period, &total))
		got = append(got, [2]any{period, total})
	}
	assert.Equal(t, [][2]any{{"2024-01-31", 1500.0}, {"2024-02-29", 1750.0}}, got)
}

func TestExclusionKeepsRowsWithoutValue(t *testing.T) {
	db := seedLedger(t)
	_, err := db.Exec(`INSERT INTO LEDGER_ENTRIES (COMPANY_ID, PER_END_DATE, DESCRIPTION, AMOUNT)
		VALUES (1, '2024-02-29', 'bank fee', 25)`)
	require.NoError(t, err)

	in := intent.Intent{
		DataType: "expenses",
		Exclude: []intent.Filter{
			{Field: "vendor", Op: intent.OpNe, Values: []any{"Acme Electric"}},
			{Field: "annotation", Op: intent.OpNotIn, Values: []any{"void"}},
		},
	}
	pair, err := Synthesize(in, newResolver(nil), sqliteOpts())
	require.NoError(t, err)

	got := ids(t, db, pair.Raw)
	assert.Len(t, got, 4)
	assert.True(t, got[6], "entry with no vendor must survive a vendor exclusion")
	assert.False(t, got[1])
	assert.False(t, got[2])
}

func TestTotalColumnKeepsCase(t *testing.T) {
	db := seedLedger(t)

	pair, err := Synthesize(intent.Intent{DataType: "expenses"}, newResolver(nil), sqliteOpts())
	require.NoError(t, err)

	rows, err := db.Query(pair.Aggregate)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"TOTAL"}, cols)
}
