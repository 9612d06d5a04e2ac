package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/format"
	"github.com/ledgerlens/backend/internal/intent"
	"github.com/ledgerlens/backend/internal/sqlgen"
	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/apperrors"
)

func searchPair() sqlgen.QueryPair {
	return sqlgen.QueryPair{
		Aggregate: `SELECT SUM("AMOUNT") AS "TOTAL" FROM "LEDGER_ENTRIES" LIMIT 100`,
		Raw:       `SELECT * FROM "LEDGER_ENTRIES" LIMIT 100`,
	}
}

func TestRetriever_WithoutSearcher(t *testing.T) {
	sess := &fakeSession{
		store:     &fakeStore{},
		aggregate: models.ResultSet{Columns: []string{"TOTAL"}, Rows: [][]any{{42.0}}},
	}
	r := NewRetriever(nil, false, nil)

	res, err := r.Retrieve(context.Background(), "total", intent.Intent{DataType: "expenses", Mode: intent.ModeSearch}, searchPair(), sess)
	require.NoError(t, err)

	assert.Empty(t, res.ProvenanceNote)
	assert.Equal(t, format.NoResults, res.RawOutput)
	assert.Contains(t, res.SummaryInput, "| 42 |")
	assert.Contains(t, res.Diagnostics, "semantic search not configured")

	sess.execErr = errors.New("locked")
	_, err = r.Retrieve(context.Background(), "total", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	assert.True(t, errors.Is(err, apperrors.RetrievalFailure))
}

func TestRetriever_EmptyEverywhere(t *testing.T) {
	sess := &fakeSession{store: &fakeStore{}}
	r := NewRetriever(&fakeSearcher{}, false, nil)

	res, err := r.Retrieve(context.Background(), "nothing", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)

	assert.Equal(t, SemanticOnlyNote, res.ProvenanceNote)
	assert.Equal(t, format.NoResults, res.SummaryInput)
	assert.Equal(t, format.NoResults, res.RawOutput)
}

func TestRetriever_NoNoteWithoutSearcher(t *testing.T) {
	sess := &fakeSession{store: &fakeStore{}}
	r := NewRetriever(nil, false, nil)

	res, err := r.Retrieve(context.Background(), "nothing", intent.Intent{DataType: "expenses", Mode: intent.ModeSearch}, searchPair(), sess)
	require.NoError(t, err)

	assert.Empty(t, res.ProvenanceNote)
	assert.Equal(t, format.NoResults, res.SummaryInput)
	assert.Equal(t, format.NoResults, res.RawOutput)
	assert.Contains(t, res.Diagnostics, "semantic search not configured")
}

func TestRetriever_NoNoteWhenSemanticFails(t *testing.T) {
	sess := &fakeSession{store: &fakeStore{}}
	r := NewRetriever(&fakeSearcher{err: errBoom}, false, nil)

	res, err := r.Retrieve(context.Background(), "nothing", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)

	assert.Empty(t, res.ProvenanceNote)
	assert.Equal(t, format.NoResults, res.SummaryInput)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "semantic search unavailable")
}

func TestRetriever_RawFailureKeepsTotals(t *testing.T) {
	sess := &fakeSession{
		store:     &fakeStore{},
		aggregate: models.ResultSet{Columns: []string{"TOTAL"}, Rows: [][]any{{42.0}}},
		rawErr:    errors.New("statement timeout"),
	}
	r := NewRetriever(&fakeSearcher{snippets: threeSnippets()}, false, nil)

	res, err := r.Retrieve(context.Background(), "total", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)

	assert.Equal(t, 1, res.AggregateRows)
	assert.Equal(t, 0, res.RawRows)
	assert.Empty(t, res.ProvenanceNote)
	assert.Contains(t, res.SummaryInput, "| 42 |")
	assert.Contains(t, res.SummaryInput, "Acme Electric")
	assert.NotContains(t, res.RawOutput, "Ledger rows")
	assert.Contains(t, res.RawOutput, "Semantic matches")
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "ledger rows unavailable")
	assert.Contains(t, res.Diagnostics[0], "statement timeout")
}

func TestRetriever_RawFailureWithoutSearcher(t *testing.T) {
	sess := &fakeSession{
		store:     &fakeStore{},
		aggregate: models.ResultSet{Columns: []string{"TOTAL"}, Rows: [][]any{{42.0}}},
		rawErr:    errors.New("statement timeout"),
	}
	r := NewRetriever(nil, false, nil)

	res, err := r.Retrieve(context.Background(), "total", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)

	assert.Contains(t, res.SummaryInput, "| 42 |")
	assert.Equal(t, format.NoResults, res.RawOutput)
	assert.Empty(t, res.ProvenanceNote)
}

func TestRetriever_SemanticTextPrefix(t *testing.T) {
	searcher := &fakeSearcher{}
	sess := &fakeSession{store: &fakeStore{}}

	_, err := NewRetriever(searcher, false, nil).Retrieve(context.Background(), "pump repairs", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)
	assert.Equal(t, "pump repairs", searcher.lastText)

	_, err = NewRetriever(searcher, true, nil).Retrieve(context.Background(), "pump repairs", intent.Intent{DataType: "expenses"}, searchPair(), sess)
	require.NoError(t, err)
	assert.Equal(t, "expenses: pump repairs", searcher.lastText)
}

func TestDropNullRows(t *testing.T) {
	rs := models.ResultSet{
		Columns: []string{"VENDOR_NAME", "TOTAL"},
		Rows:    [][]any{{nil, nil}, {"Acme", nil}, {nil, 3.0}},
	}
	out := dropNullRows(rs)
	assert.Equal(t, rs.Columns, out.Columns)
	assert.Equal(t, [][]any{{"Acme", nil}, {nil, 3.0}}, out.Rows)
}
