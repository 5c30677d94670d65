package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

// mockOutbox records outbox writes, snapshotting entry state per call.
type mockOutbox struct {
	mu        sync.Mutex
	insertErr error
	updateErr error
	inserts   []ticket.OutboxEmail
	updates   []ticket.OutboxEmail
}

func (m *mockOutbox) InsertOutbox(_ context.Context, e *ticket.OutboxEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if e.ID == "" {
		e.ID = "out-1"
	}
	m.inserts = append(m.inserts, *e)
	return nil
}

func (m *mockOutbox) UpdateOutbox(_ context.Context, e *ticket.OutboxEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, *e)
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

func newTestSender(store *mockOutbox, sink *logSink) *Sender {
	s := New(store, runlog.New(sink, nil), nil)
	s.Delay = time.Millisecond
	return s
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	store := &mockOutbox{}
	sink := &logSink{}
	s := newTestSender(store, sink)

	id, err := s.Send(context.Background(), "customer@example.com", "Re: broken export", "We fixed it.", "t1")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "out-1" {
		t.Errorf("outbox id = %q, want out-1", id)
	}

	if len(store.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(store.inserts))
	}
	if store.inserts[0].Status != ticket.OutboxPending {
		t.Errorf("inserted status = %s, want pending before the transport attempt", store.inserts[0].Status)
	}

	if len(store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updates))
	}
	final := store.updates[0]
	if final.Status != ticket.OutboxSent {
		t.Errorf("final status = %s, want sent", final.Status)
	}
	if final.SentAt.IsZero() {
		t.Error("SentAt not set on sent entry")
	}

	if len(sink.entries) != 1 {
		t.Fatalf("run log entries = %d, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Step != ticket.StepEmailSend || e.Status != ticket.LogSuccess {
		t.Errorf("entry = %s/%s, want email_send/success", e.Step, e.Status)
	}
	if strings.Contains(e.PayloadPreview, "customer@example.com") {
		t.Errorf("payload preview leaked recipient address: %q", e.PayloadPreview)
	}
}

func TestSend_SimulatedFailure(t *testing.T) {
	t.Parallel()

	store := &mockOutbox{}
	sink := &logSink{}
	s := newTestSender(store, sink)
	s.SimulateFailure = true

	_, err := s.Send(context.Background(), "customer@example.com", "Re: x", "body", "t1")
	if err == nil {
		t.Fatal("Send() = nil, want transport error")
	}

	if len(store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updates))
	}
	final := store.updates[0]
	if final.Status != ticket.OutboxFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("failed entry carries no error text")
	}

	if len(sink.entries) != 1 {
		t.Fatalf("run log entries = %d, want 1", len(sink.entries))
	}
	if sink.entries[0].Status != ticket.LogFailed {
		t.Errorf("entry status = %s, want failed", sink.entries[0].Status)
	}
}

func TestSend_InsertFailure(t *testing.T) {
	t.Parallel()

	store := &mockOutbox{insertErr: errors.New("constraint violation")}
	sink := &logSink{}
	s := newTestSender(store, sink)

	_, err := s.Send(context.Background(), "customer@example.com", "Re: x", "body", "t1")
	if err == nil {
		t.Fatal("Send() = nil, want error")
	}
	if !strings.Contains(err.Error(), "insert outbox") {
		t.Errorf("err = %v, want wrapped insert error", err)
	}
	if len(store.updates) != 0 {
		t.Errorf("updates = %d, want 0 when staging failed", len(store.updates))
	}
	if len(sink.entries) != 1 || sink.entries[0].Status != ticket.LogFailed {
		t.Error("want one failure run log entry")
	}
}

func TestSend_ContextCancelledDuringTransport(t *testing.T) {
	t.Parallel()

	store := &mockOutbox{}
	s := newTestSender(store, &logSink{})
	s.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, "customer@example.com", "Re: x", "body", "t1")
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Send() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Send() did not return after cancellation")
	}
}
