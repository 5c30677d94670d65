package kb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/sift/internal/retry"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

// mockStore serves documents and captures match replacements.
type mockStore struct {
	mu         sync.Mutex
	docs       []ticket.Document
	listErrs   []error // consumed in sequence, nil = success
	listCalls  int
	replaceErr error
	replaced   map[string][][]ticket.KBMatch
}

func (m *mockStore) ListDocuments(_ context.Context) ([]ticket.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.listCalls
	m.listCalls++
	if idx < len(m.listErrs) && m.listErrs[idx] != nil {
		return nil, m.listErrs[idx]
	}
	return m.docs, nil
}

func (m *mockStore) ReplaceMatches(_ context.Context, ticketID string, matches []ticket.KBMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if m.replaced == nil {
		m.replaced = make(map[string][][]ticket.KBMatch)
	}
	m.replaced[ticketID] = append(m.replaced[ticketID], matches)
	return nil
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

func newTestRetriever(store *mockStore, sink *logSink) *Retriever {
	r := New(store, runlog.New(sink, nil), nil)
	r.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return r
}

func testDocs() []ticket.Document {
	return []ticket.Document{
		{ID: "d1", Title: "Resetting your password", Body: "To reset a password, open settings. The password reset link expires after one hour. Contact support if the password email never arrives."},
		{ID: "d2", Title: "Billing FAQ", Body: "Invoices are issued monthly. Refunds take five business days."},
		{ID: "d3", Title: "Exporting reports", Body: "Reports can be exported as CSV from the dashboard."},
		{ID: "d4", Title: "Password policy", Body: "Minimum twelve characters."},
	}
}

func TestSearch_RanksTitleAndBodyHits(t *testing.T) {
	t.Parallel()

	store := &mockStore{docs: testDocs()}
	sink := &logSink{}
	r := newTestRetriever(store, sink)

	snippets, err := r.Search(context.Background(), "password reset help", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) == 0 {
		t.Fatal("Search() returned no snippets")
	}

	// d1: "password" and "reset" both hit the title (3 each), the body has
	// three "password" and two "reset" occurrences = 11
	if snippets[0].ID != "d1" {
		t.Errorf("top snippet = %s, want d1", snippets[0].ID)
	}
	if snippets[0].Score != 11 {
		t.Errorf("top score = %v, want 11 (title hits plus body occurrences)", snippets[0].Score)
	}

	for _, s := range snippets {
		if s.Score <= 0 {
			t.Errorf("snippet %s has score %v, want > 0", s.ID, s.Score)
		}
	}
}

func TestSearch_CapsAtMaxSnippets(t *testing.T) {
	t.Parallel()

	docs := make([]ticket.Document, 6)
	for i := range docs {
		docs[i] = ticket.Document{
			ID:    string(rune('a' + i)),
			Title: "Password guide",
			Body:  "password notes",
		}
	}
	store := &mockStore{docs: docs}
	r := newTestRetriever(store, &logSink{})

	snippets, err := r.Search(context.Background(), "password", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != MaxSnippets {
		t.Errorf("snippets = %d, want %d", len(snippets), MaxSnippets)
	}
}

func TestSearch_ExcerptAlwaysEllipsized(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("password troubleshooting guidance. ", 20)
	store := &mockStore{docs: []ticket.Document{
		{ID: "short", Title: "Password", Body: "short body with password"},
		{ID: "long", Title: "Password", Body: long},
	}}
	r := newTestRetriever(store, &logSink{})

	snippets, err := r.Search(context.Background(), "password", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, s := range snippets {
		if !strings.HasSuffix(s.Excerpt, "...") {
			t.Errorf("excerpt for %s missing ellipsis: %q", s.ID, s.Excerpt)
		}
		if len(s.Excerpt) > 153 {
			t.Errorf("excerpt for %s too long: %d", s.ID, len(s.Excerpt))
		}
	}
}

func TestSearch_NoDocuments_NoLog(t *testing.T) {
	t.Parallel()

	sink := &logSink{}
	r := newTestRetriever(&mockStore{}, sink)

	snippets, err := r.Search(context.Background(), "password", "t1")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != 0 {
		t.Errorf("snippets = %d, want 0", len(snippets))
	}
	if len(sink.entries) != 0 {
		t.Errorf("run log entries = %d, want 0 on the no-documents path", len(sink.entries))
	}
}

func TestSearch_NoUsableTerms_NoLog(t *testing.T) {
	t.Parallel()

	sink := &logSink{}
	r := newTestRetriever(&mockStore{docs: testDocs()}, sink)

	snippets, err := r.Search(context.Background(), "a an of", "t1")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != 0 {
		t.Errorf("snippets = %d, want 0", len(snippets))
	}
	if len(sink.entries) != 0 {
		t.Errorf("run log entries = %d, want 0 on the no-terms path", len(sink.entries))
	}
}

func TestSearch_ZeroHits_StillLogs(t *testing.T) {
	t.Parallel()

	sink := &logSink{}
	store := &mockStore{docs: testDocs()}
	r := newTestRetriever(store, sink)

	snippets, err := r.Search(context.Background(), "kubernetes operator webhook", "t1")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != 0 {
		t.Errorf("snippets = %d, want 0", len(snippets))
	}
	// a ranked search that found nothing is still a completed search
	if len(sink.entries) != 1 {
		t.Fatalf("run log entries = %d, want 1", len(sink.entries))
	}
	if sink.entries[0].Status != ticket.LogSuccess || sink.entries[0].Step != ticket.StepRAGSearch {
		t.Errorf("entry = %s/%s, want rag_search/success", sink.entries[0].Step, sink.entries[0].Status)
	}
	if len(store.replaced) != 0 {
		t.Error("ReplaceMatches should not run with zero hits")
	}
}

func TestSearch_ReplacesMatchSnapshot(t *testing.T) {
	t.Parallel()

	store := &mockStore{docs: testDocs()}
	r := newTestRetriever(store, &logSink{})

	if _, err := r.Search(context.Background(), "password reset", "t1"); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if _, err := r.Search(context.Background(), "password reset", "t1"); err != nil {
		t.Fatalf("second Search() error = %v", err)
	}

	// two full replacements, not one growing append
	if got := len(store.replaced["t1"]); got != 2 {
		t.Fatalf("ReplaceMatches calls = %d, want 2", got)
	}
	for _, set := range store.replaced["t1"] {
		for _, m := range set {
			if m.TicketID != "t1" {
				t.Errorf("match ticket = %q, want t1", m.TicketID)
			}
		}
	}
}

func TestSearch_RetriesStoreErrors(t *testing.T) {
	t.Parallel()

	store := &mockStore{
		docs:     testDocs(),
		listErrs: []error{errors.New("timeout"), errors.New("timeout")},
	}
	sink := &logSink{}
	r := newTestRetriever(store, sink)

	snippets, err := r.Search(context.Background(), "password reset", "t1")
	if err != nil {
		t.Fatalf("Search() error = %v after retryable failures", err)
	}
	if len(snippets) == 0 {
		t.Error("expected snippets after successful retry")
	}
	if store.listCalls != 3 {
		t.Errorf("list calls = %d, want 3", store.listCalls)
	}
}

func TestSearch_ExhaustedRetries_FailureLog(t *testing.T) {
	t.Parallel()

	boom := errors.New("database down")
	store := &mockStore{
		docs:     testDocs(),
		listErrs: []error{boom, boom, boom},
	}
	sink := &logSink{}
	r := newTestRetriever(store, sink)

	_, err := r.Search(context.Background(), "password reset", "t1")
	if err == nil {
		t.Fatal("Search() = nil, want error after exhausted retries")
	}

	if len(sink.entries) != 1 {
		t.Fatalf("run log entries = %d, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Status != ticket.LogFailed || e.Step != ticket.StepRAGSearch {
		t.Errorf("entry = %s/%s, want rag_search/failed", e.Step, e.Status)
	}
	if !strings.Contains(e.ErrorMessage, "database down") {
		t.Errorf("error message = %q, want final error", e.ErrorMessage)
	}
}

func TestSearch_ObserveHook(t *testing.T) {
	t.Parallel()

	store := &mockStore{docs: testDocs()}
	r := newTestRetriever(store, &logSink{})

	var got []int
	r.Observe = func(count int) { got = append(got, count) }

	if _, err := r.Search(context.Background(), "password reset", ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0] == 0 {
		t.Errorf("observed counts = %v, want one positive observation", got)
	}
}
