package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/sift/internal/retry"
	"github.com/linnemanlabs/sift/internal/ticket"
)

// mockProvider returns preconfigured verdicts and errors in sequence.
type mockProvider struct {
	mu       sync.Mutex
	verdicts []*Verdict
	errs     []error
	callIdx  int
	requests []*AnalyzeRequest
}

func (m *mockProvider) Analyze(_ context.Context, req *AnalyzeRequest) (*Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.verdicts) {
		return m.verdicts[idx], nil
	}
	return validVerdict(), nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

type logSink struct {
	mu      sync.Mutex
	entries []ticket.RunLog
}

func (s *logSink) InsertRunLog(_ context.Context, e *ticket.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *logSink) all() []ticket.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ticket.RunLog(nil), s.entries...)
}

func fastEngine(p Provider) *Engine {
	e := NewEngine(p, nil)
	e.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return e
}

func TestAnalyze_FirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	e := fastEngine(p)

	v, err := e.Analyze(context.Background(), "t1", &AnalyzeRequest{Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if v == nil || v.Category != CategoryBug {
		t.Errorf("verdict = %+v", v)
	}
	if p.calls() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls())
	}
}

func TestAnalyze_FailFailSucceed(t *testing.T) {
	t.Parallel()

	p := &mockProvider{errs: []error{errors.New("overloaded"), errors.New("overloaded")}}
	e := fastEngine(p)

	v, err := e.Analyze(context.Background(), "t1", &AnalyzeRequest{Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if v == nil {
		t.Fatal("verdict = nil")
	}
	if p.calls() != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls())
	}
}

func TestAnalyze_AllAttemptsFail(t *testing.T) {
	t.Parallel()

	boom := errors.New("api key invalid")
	p := &mockProvider{errs: []error{boom, boom, boom}}
	e := fastEngine(p)

	_, err := e.Analyze(context.Background(), "t1", &AnalyzeRequest{Subject: "s", Body: "b"})
	if err == nil {
		t.Fatal("Analyze() = nil, want error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want final provider error", err)
	}
	if p.calls() != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls())
	}
}

func TestAnalyze_SchemaFailureRetried(t *testing.T) {
	t.Parallel()

	// first response parses but fails validation, second is clean
	bad := validVerdict()
	bad.Category = "nonsense"
	p := &mockProvider{verdicts: []*Verdict{bad, validVerdict()}}
	e := fastEngine(p)

	v, err := e.Analyze(context.Background(), "t1", &AnalyzeRequest{Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if v.Category != CategoryBug {
		t.Errorf("verdict category = %q, want the second, valid response", v.Category)
	}
	if p.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls())
	}
}

func TestMock_ReturnsFixedVerdict(t *testing.T) {
	t.Parallel()

	m := &Mock{Delay: time.Millisecond}
	v, err := m.Analyze(context.Background(), &AnalyzeRequest{Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if err := v.Validate(); err != nil {
		t.Errorf("mock verdict fails validation: %v", err)
	}
	if v.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", v.Confidence)
	}
}
