package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// MockFetcher is a HoldingsFetcher returning queued results in order.
// Once the queue is drained the last result repeats.
type MockFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{}
}

type fetchResult struct {
	snapshot *domain.Snapshot
	err      error
}

// NewMockFetcher creates a new mock fetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{}
}

// QueueSnapshot appends a successful fetch result
func (m *MockFetcher) QueueSnapshot(s *domain.Snapshot) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, fetchResult{snapshot: s})
	return m
}

// QueueError appends a failing fetch result
func (m *MockFetcher) QueueError(err error) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, fetchResult{err: err})
	return m
}

// BlockUntil makes Fetch wait until release is closed or ctx is done
func (m *MockFetcher) BlockUntil(release chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = release
}

// Fetch implements domain.HoldingsFetcher
func (m *MockFetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	var res fetchResult
	switch {
	case len(m.results) == 0:
		res = fetchResult{err: domain.NewFetchError(domain.FetchUnavailable, "mock.fetch", fmt.Errorf("no result queued"))}
	case len(m.results) == 1:
		res = m.results[0]
	default:
		res = m.results[0]
		m.results = m.results[1:]
	}
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.NewFetchError(domain.FetchUnavailable, "mock.fetch", ctx.Err())
		}
	}
	return res.snapshot, res.err
}

// Name implements domain.HoldingsFetcher
func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many times Fetch was invoked
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockExplainer is an Explainer that records calls
type MockExplainer struct {
	mu    sync.Mutex
	calls int
	err   error
	reply func(domain.Delta) string
}

// NewMockExplainer creates a mock explainer answering "<kind> <symbol>"
func NewMockExplainer() *MockExplainer {
	return &MockExplainer{
		reply: func(d domain.Delta) string { return fmt.Sprintf("%s %s", d.Kind, d.Symbol) },
	}
}

// SetError makes every call fail with err
func (m *MockExplainer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Explain implements domain.Explainer
func (m *MockExplainer) Explain(ctx context.Context, delta domain.Delta, _ domain.StyleContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply(delta), nil
}

// Name implements domain.Explainer
func (m *MockExplainer) Name() string { return "mock" }

// Calls returns how many times Explain was invoked
func (m *MockExplainer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RecordingSink is a CycleSink that keeps every delivered record
type RecordingSink struct {
	mu      sync.Mutex
	records []domain.CycleRunRecord
}

// Deliver implements domain.CycleSink
func (s *RecordingSink) Deliver(_ context.Context, record domain.CycleRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of delivered records
func (s *RecordingSink) Records() []domain.CycleRunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CycleRunRecord, len(s.records))
	copy(out, s.records)
	return out
}
