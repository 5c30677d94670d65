// Package runlog writes the durable audit record for pipeline steps.
// Writes are best-effort: a failure to record never propagates to the
// caller, so the pipeline can never be taken down by its own audit trail.
package runlog

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/ticket"
)

// maxPreviewLen caps the stored payload preview. The run log is an audit
// trail, not a replay log; truncation is lossy on purpose.
const maxPreviewLen = 200

// Redacted replaces email-address-shaped substrings in payload previews.
const Redacted = "[REDACTED]"

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Sink is the subset of the store the recorder writes through.
type Sink interface {
	InsertRunLog(ctx context.Context, e *ticket.RunLog) error
}

// Entry describes one step execution to record.
type Entry struct {
	TicketID     string
	Step         ticket.Step
	Status       ticket.LogStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	ErrorCode    string
	ErrorMessage string
	Payload      any
}

// Recorder persists run-log entries.
type Recorder struct {
	sink   Sink
	logger log.Logger

	// Observe, when set, receives the step and status of every successful
	// write. Used for metrics.
	Observe func(step, status string)
}

// New creates a Recorder writing through the given sink.
func New(sink Sink, logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Record writes one audit record. Storage failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	rl := &ticket.RunLog{
		TicketID:       e.TicketID,
		Step:           e.Step,
		Status:         e.Status,
		StartedAt:      e.StartedAt,
		FinishedAt:     e.FinishedAt,
		ErrorCode:      e.ErrorCode,
		ErrorMessage:   e.ErrorMessage,
		PayloadPreview: Preview(e.Payload),
	}

	if !e.StartedAt.IsZero() && !e.FinishedAt.IsZero() {
		ms := e.FinishedAt.Sub(e.StartedAt).Milliseconds()
		rl.LatencyMS = &ms
	}

	if err := r.sink.InsertRunLog(ctx, rl); err != nil {
		r.logger.Error(ctx, err, "failed to write run log",
			"step", string(e.Step),
			"status", string(e.Status),
			"ticket_id", e.TicketID,
		)
		return
	}

	if r.Observe != nil {
		r.Observe(string(e.Step), string(e.Status))
	}
}

// Preview serializes a payload, redacts email-shaped substrings, and
// truncates to the preview limit.
func Preview(payload any) string {
	if payload == nil {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "unserializable payload"
	}
	s := emailRe.ReplaceAllString(string(b), Redacted)
	if len(s) > maxPreviewLen {
		s = s[:maxPreviewLen]
	}
	return s
}
