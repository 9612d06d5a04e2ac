package query

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ledgerlens/backend/internal/storage/models"
)

type fakeClassifier struct {
	out string
	err error
}

func (f *fakeClassifier) Classify(context.Context, string) (string, error) {
	return f.out, f.err
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	data  string
	note  string
	err   error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _, data, note string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.data = data
	f.note = note
	if f.err != nil {
		return "", f.err
	}
	return "LOE expenses were highest in February.", nil
}

type fakeStore struct {
	mu         sync.Mutex
	acquired   int
	released   int
	acquireErr error
	session    *fakeSession
}

func (s *fakeStore) Acquire(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	s.session.store = s
	return s.session, nil
}

type fakeSession struct {
	store *fakeStore

	mu         sync.Mutex
	columns    []string
	columnsErr error
	// Statements starting with "SELECT *" get raw; all others get aggregate.
	aggregate models.ResultSet
	raw       models.ResultSet
	execErr   error
	rawErr    error
	closeErr  error
	executed  []string
}

func (s *fakeSession) ListColumns(context.Context, string, string) ([]string, error) {
	return s.columns, s.columnsErr
}

func (s *fakeSession) Execute(_ context.Context, sqlText string) (models.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, sqlText)
	if s.execErr != nil {
		return models.ResultSet{}, s.execErr
	}
	if strings.HasPrefix(sqlText, "SELECT *") {
		if s.rawErr != nil {
			return models.ResultSet{}, s.rawErr
		}
		return s.raw, nil
	}
	return s.aggregate, nil
}

func (s *fakeSession) Close() error {
	s.store.mu.Lock()
	s.store.released++
	s.store.mu.Unlock()
	return s.closeErr
}

func (s *fakeSession) statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

type fakeSearcher struct {
	mu       sync.Mutex
	calls    int
	lastText string
	snippets []models.Snippet
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, text string) ([]models.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	return f.snippets, f.err
}

var errBoom = errors.New("boom")

func threeSnippets() []models.Snippet {
	return []models.Snippet{
		{ID: "1", Fields: []models.Field{{Key: "vendor", Value: "Acme Electric"}, {Key: "amount", Value: "1200"}}},
		{ID: "2", Fields: []models.Field{{Key: "vendor", Value: "Baker Pumps"}, {Key: "amount", Value: "800"}}},
		{ID: "3", Fields: []models.Field{{Key: "vendor", Value: "O'Brien Services"}, {Key: "amount", Value: "950"}}},
	}
}
