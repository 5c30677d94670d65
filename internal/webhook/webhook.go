// Package webhook delivers ticket event notifications to a configured
// external HTTP endpoint. Delivery is best-effort: failures are retried,
// logged, and never surfaced to the caller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/retry"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

const (
	httpTimeout = 10 * time.Second
	userAgent   = "sift/1.0"
)

// Event is the kind of ticket notification being delivered.
type Event string

const (
	EventCreated   Event = "ticket.created"
	EventApproved  Event = "ticket.approved"
	EventEscalated Event = "ticket.escalated"
	EventFailed    Event = "ticket.failed"
)

// Payload is the JSON body posted to the endpoint. The ticket fields are
// refetched at dispatch time so the payload reflects committed state, not
// the caller's in-memory view.
type Payload struct {
	Event         Event    `json:"event"`
	TicketID      string   `json:"ticket_id"`
	TicketSubject string   `json:"ticket_subject"`
	CustomerEmail string   `json:"customer_email"`
	Status        string   `json:"status"`
	Timestamp     string   `json:"timestamp"`
	AICategory    string   `json:"ai_category,omitempty"`
	AIUrgency     string   `json:"ai_urgency,omitempty"`
	AIConfidence  *float64 `json:"ai_confidence,omitempty"`
}

// TicketGetter is the subset of the store the dispatcher reads.
type TicketGetter interface {
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, bool, error)
}

// Outcome receives delivery results for metrics.
type Outcome func(event Event, outcome string)

// Dispatcher posts ticket events to the configured endpoint.
type Dispatcher struct {
	url      string
	store    TicketGetter
	recorder *runlog.Recorder
	logger   log.Logger
	client   *http.Client
	policy   retry.Policy
	outcome  Outcome
	now      func() time.Time
}

// New creates a Dispatcher. If url is empty, Dispatch is a no-op that
// performs no network calls and writes no log entries.
func New(url string, store TicketGetter, recorder *runlog.Recorder, logger log.Logger, outcome Outcome) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	if outcome == nil {
		outcome = func(Event, string) {}
	}
	return &Dispatcher{
		url:      url,
		store:    store,
		recorder: recorder,
		logger:   logger,
		client:   &http.Client{Timeout: httpTimeout},
		policy:   retry.Default,
		outcome:  outcome,
		now:      time.Now,
	}
}

// Go dispatches the event on a detached goroutine so callers fire and
// forget. The dispatch outlives the triggering request's context.
func (d *Dispatcher) Go(ctx context.Context, event Event, ticketID string) {
	if d.url == "" {
		return
	}
	go d.Dispatch(context.WithoutCancel(ctx), event, ticketID)
}

// Dispatch delivers one event, retrying on the shared schedule. It never
// returns an error; the final failure is logged and recorded only.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, ticketID string) {
	if d.url == "" {
		return
	}

	startedAt := d.now()
	L := d.logger.With("event", string(event), "ticket_id", ticketID)

	t, ok, err := d.store.GetTicket(ctx, ticketID)
	if err != nil || !ok {
		L.Error(ctx, err, "webhook: failed to fetch ticket")
		d.outcome(event, "error")
		return
	}

	payload := Payload{
		Event:         event,
		TicketID:      t.ID,
		TicketSubject: t.Subject,
		CustomerEmail: t.CustomerEmail,
		Status:        string(t.Status),
		Timestamp:     d.now().UTC().Format(time.RFC3339),
		AICategory:    t.AICategory,
		AIUrgency:     t.AIUrgency,
		AIConfidence:  t.AIConfidence,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		L.Error(ctx, err, "webhook: marshal payload")
		d.outcome(event, "error")
		return
	}

	var attempts int
	err = d.policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		if derr := d.deliver(ctx, event, body, attempt); derr != nil {
			L.Warn(ctx, "webhook attempt failed", "attempt", attempt, "error", derr.Error())
			return derr
		}
		return nil
	})
	if err != nil {
		d.recorder.Record(ctx, runlog.Entry{
			TicketID:     ticketID,
			Step:         ticket.StepWebhook,
			Status:       ticket.LogFailed,
			StartedAt:    startedAt,
			FinishedAt:   d.now(),
			ErrorCode:    "WEBHOOK_FAILED",
			ErrorMessage: err.Error(),
			Payload:      map[string]any{"event": event, "attempts": attempts, "url": d.url},
		})
		d.outcome(event, "failed")
		return
	}

	d.recorder.Record(ctx, runlog.Entry{
		TicketID:   ticketID,
		Step:       ticket.StepWebhook,
		Status:     ticket.LogSuccess,
		StartedAt:  startedAt,
		FinishedAt: d.now(),
		Payload:    map[string]any{"event": event, "attempts": attempts, "url": d.url},
	})
	d.outcome(event, "success")
}

func (d *Dispatcher) deliver(ctx context.Context, event Event, body []byte, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", string(event))
	req.Header.Set("X-Webhook-Delivery-Attempt", strconv.Itoa(attempt))

	resp, err := d.client.Do(req) //nolint:gosec // G704: url is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
