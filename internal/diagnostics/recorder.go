// Package diagnostics is the channel unresolved intent terms are reported
// on. Counts gathered here help operators grow the alias table; nothing
// recorded here ever feeds back into a query.
package diagnostics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/metrics"
	"github.com/ledgerlens/backend/internal/schema"
)

type TermCount struct {
	Term  string      `json:"term"`
	Kind  schema.Kind `json:"kind"`
	Count int64       `json:"count"`
}

// TermCounter persists unresolved-term frequencies.
type TermCounter interface {
	Increment(ctx context.Context, term string, kind schema.Kind) error
	Top(ctx context.Context, limit int) ([]TermCount, error)
}

// Recorder implements schema.Reporter. It logs, counts in prometheus and
// bumps the TermCounter; a counter failure is logged and swallowed.
type Recorder struct {
	counter TermCounter
	timeout time.Duration
	log     *zap.Logger
}

func NewRecorder(counter TermCounter, log *zap.Logger) *Recorder {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{counter: counter, timeout: 500 * time.Millisecond, log: log}
}

func (r *Recorder) Unresolved(res schema.Resolution) {
	r.log.Warn("Unresolved intent term",
		zap.String("term", res.Term),
		zap.String("kind", string(res.Kind)),
		zap.String("reason", res.Reason),
	)
	metrics.UnresolvedTerms.WithLabelValues(string(res.Kind)).Inc()

	term := schema.Normalize(res.Term)
	if term == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.counter.Increment(ctx, term, res.Kind); err != nil {
		r.log.Warn("Failed to record unresolved term", zap.String("term", term), zap.Error(err))
	}
}

func (r *Recorder) Top(ctx context.Context, limit int) ([]TermCount, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.counter.Top(ctx, limit)
}

func member(term string, kind schema.Kind) string {
	return string(kind) + ":" + term
}

func parseMember(m string) (string, schema.Kind) {
	kind, term, ok := strings.Cut(m, ":")
	if !ok {
		return m, ""
	}
	return term, schema.Kind(kind)
}

// MemoryCounter keeps counts for the life of the process. Used when redis
// is disabled.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (m *MemoryCounter) Increment(_ context.Context, term string, kind schema.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[member(term, kind)]++
	return nil
}

func (m *MemoryCounter) Top(_ context.Context, limit int) ([]TermCount, error) {
	m.mu.Lock()
	out := make([]TermCount, 0, len(m.counts))
	for key, n := range m.counts {
		term, kind := parseMember(key)
		out = append(out, TermCount{Term: term, Kind: kind, Count: n})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return member(out[i].Term, out[i].Kind) < member(out[j].Term, out[j].Kind)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
