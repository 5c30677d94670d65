// Package email sends outbound notifications through a durable outbox
// record. Only the outbox bookkeeping is real; the transport is simulated,
// and the pipeline never assumes a live provider exists.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

// sendDelay simulates provider latency.
const sendDelay = 2 * time.Second

// OutboxStore is the subset of the store the sender writes.
type OutboxStore interface {
	InsertOutbox(ctx context.Context, e *ticket.OutboxEmail) error
	UpdateOutbox(ctx context.Context, e *ticket.OutboxEmail) error
}

// Sender writes outbox entries and drives them to sent or failed.
type Sender struct {
	store    OutboxStore
	recorder *runlog.Recorder
	logger   log.Logger

	// SimulateFailure forces the transport step to fail; used to exercise
	// the failed-outbox path end to end.
	SimulateFailure bool

	// Delay overrides the simulated transport latency; zero means sendDelay.
	Delay time.Duration

	now func() time.Time
}

// New creates a Sender.
func New(store OutboxStore, recorder *runlog.Recorder, logger log.Logger) *Sender {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sender{
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Send stages the email in the outbox, attempts the transport, and updates
// the entry in place. The pending row written before the attempt is the
// durability mechanism that survives a crash mid-send. The outbox id is
// returned on success; transport and storage errors are returned to the
// caller after the outbox and run log are updated.
func (s *Sender) Send(ctx context.Context, to, subject, body, ticketID string) (string, error) {
	startedAt := s.now()

	entry := &ticket.OutboxEmail{
		To:      to,
		Subject: subject,
		Body:    body,
		Status:  ticket.OutboxPending,
	}
	if err := s.store.InsertOutbox(ctx, entry); err != nil {
		err = fmt.Errorf("insert outbox: %w", err)
		s.logFailure(ctx, ticketID, startedAt, err)
		return "", err
	}

	if err := s.transport(ctx); err != nil {
		entry.Status = ticket.OutboxFailed
		entry.Error = err.Error()
		if uerr := s.store.UpdateOutbox(ctx, entry); uerr != nil {
			s.logger.Error(ctx, uerr, "failed to mark outbox entry failed", "outbox_id", entry.ID)
		}
		s.logFailure(ctx, ticketID, startedAt, err)
		return "", err
	}

	entry.Status = ticket.OutboxSent
	entry.SentAt = s.now()
	if err := s.store.UpdateOutbox(ctx, entry); err != nil {
		err = fmt.Errorf("mark outbox sent: %w", err)
		s.logFailure(ctx, ticketID, startedAt, err)
		return "", err
	}

	s.recorder.Record(ctx, runlog.Entry{
		TicketID:   ticketID,
		Step:       ticket.StepEmailSend,
		Status:     ticket.LogSuccess,
		StartedAt:  startedAt,
		FinishedAt: s.now(),
		Payload:    map[string]any{"emailId": entry.ID, "to": to},
	})
	return entry.ID, nil
}

func (s *Sender) transport(ctx context.Context) error {
	delay := s.Delay
	if delay == 0 {
		delay = sendDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	if s.SimulateFailure {
		return errors.New("simulated email provider failure")
	}
	return nil
}

func (s *Sender) logFailure(ctx context.Context, ticketID string, startedAt time.Time, err error) {
	s.logger.Error(ctx, err, "email send failed", "ticket_id", ticketID)
	s.recorder.Record(ctx, runlog.Entry{
		TicketID:     ticketID,
		Step:         ticket.StepEmailSend,
		Status:       ticket.LogFailed,
		StartedAt:    startedAt,
		FinishedAt:   s.now(),
		ErrorMessage: err.Error(),
	})
}
