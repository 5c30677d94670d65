package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/kb"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

const (
	// ConfidenceThreshold separates tickets that get a drafted reply from
	// tickets that need more information from the customer.
	ConfidenceThreshold = 0.7

	// queryBodyLen is how much of the first message feeds the KB query.
	queryBodyLen = 200
)

// Searcher is the retrieval dependency of the workflow.
type Searcher interface {
	Search(ctx context.Context, query, ticketID string) ([]kb.Snippet, error)
}

// WorkflowStore is the subset of the store the workflow reads and writes.
type WorkflowStore interface {
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, bool, error)
	UpdateTicket(ctx context.Context, t *ticket.Ticket) error
	MessagesByTicket(ctx context.Context, ticketID string) ([]ticket.Message, error)
}

// Hooks receives workflow outcomes for metrics.
type Hooks struct {
	// OnComplete is called once per run with the terminal ticket status
	// and the run duration. Nil fields are skipped.
	OnComplete func(status ticket.Status, duration time.Duration)
}

// Workflow sequences retrieval and analysis for one ticket and owns all
// ticket writes. It is the unit re-invoked on manual retry.
type Workflow struct {
	store     WorkflowStore
	retriever Searcher
	engine    *Engine
	recorder  *runlog.Recorder
	logger    log.Logger
	hooks     Hooks
	now       func() time.Time
}

// NewWorkflow creates the triage workflow orchestrator.
func NewWorkflow(store WorkflowStore, retriever Searcher, engine *Engine, recorder *runlog.Recorder, logger log.Logger, hooks Hooks) *Workflow {
	if logger == nil {
		logger = log.Nop()
	}
	return &Workflow{
		store:     store,
		retriever: retriever,
		engine:    engine,
		recorder:  recorder,
		logger:    logger,
		hooks:     hooks,
		now:       time.Now,
	}
}

// Run executes the full triage sequence for a ticket. It never returns an
// error: every failure is absorbed here, the ticket is forced to status
// failed, and a failure run-log entry exists for the run. Re-running is
// safe because KB matches are replaced, not appended.
func (w *Workflow) Run(ctx context.Context, ticketID string) {
	startedAt := w.now()
	L := w.logger.With("ticket_id", ticketID)

	status, err := w.run(ctx, L, ticketID, startedAt)
	if err != nil {
		L.Error(ctx, err, "triage workflow failed")
		w.markFailed(ctx, L, ticketID)
		w.recorder.Record(ctx, runlog.Entry{
			TicketID:     ticketID,
			Step:         ticket.StepTriage,
			Status:       ticket.LogFailed,
			StartedAt:    startedAt,
			FinishedAt:   w.now(),
			ErrorMessage: err.Error(),
		})
		status = ticket.StatusFailed
	}

	if w.hooks.OnComplete != nil {
		w.hooks.OnComplete(status, w.now().Sub(startedAt))
	}
}

func (w *Workflow) run(ctx context.Context, L log.Logger, ticketID string, startedAt time.Time) (ticket.Status, error) {
	t, ok, err := w.store.GetTicket(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("ticket %s not found", ticketID)
	}

	msgs, err := w.store.MessagesByTicket(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	var body string
	if len(msgs) > 0 {
		body = msgs[0].Body
	}

	query := t.Subject + " " + truncate(body, queryBodyLen)
	snippets, err := w.retriever.Search(ctx, query, ticketID)
	if err != nil {
		return "", fmt.Errorf("kb search: %w", err)
	}

	verdict, err := w.engine.Analyze(ctx, ticketID, &AnalyzeRequest{
		Subject:   t.Subject,
		Body:      body,
		KBContext: formatContext(snippets),
	})
	if err != nil {
		return "", fmt.Errorf("analysis: %w", err)
	}

	status := ticket.StatusNeedsApproval
	if verdict.Confidence < ConfidenceThreshold {
		status = ticket.StatusNeedsInfo
	}

	confidence := verdict.Confidence
	t.Status = status
	t.AISummary = verdict.Summary
	t.AICategory = string(verdict.Category)
	t.AIUrgency = string(verdict.Urgency)
	t.AIReply = verdict.Reply
	t.AIFollowUps = verdict.FollowUps
	t.AIConfidence = &confidence
	t.AITokenUsage = verdict.TokenUsage

	if err := w.store.UpdateTicket(ctx, t); err != nil {
		return "", fmt.Errorf("update ticket: %w", err)
	}

	w.recorder.Record(ctx, runlog.Entry{
		TicketID:   ticketID,
		Step:       ticket.StepTriage,
		Status:     ticket.LogSuccess,
		StartedAt:  startedAt,
		FinishedAt: w.now(),
		Payload: map[string]any{
			"workflow":    "complete",
			"kbDocsFound": len(snippets),
			"confidence":  verdict.Confidence,
		},
	})

	L.Info(ctx, "triage workflow complete",
		"status", string(status),
		"kb_hits", len(snippets),
		"confidence", verdict.Confidence,
	)
	return status, nil
}

func (w *Workflow) markFailed(ctx context.Context, L log.Logger, ticketID string) {
	t, ok, err := w.store.GetTicket(ctx, ticketID)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to load ticket for failure update")
		return
	}
	t.Status = ticket.StatusFailed
	if err := w.store.UpdateTicket(ctx, t); err != nil {
		L.Error(ctx, err, "failed to mark ticket failed")
	}
}

// formatContext renders retrieval snippets as the Title/Excerpt/ID blocks
// the analysis prompt embeds.
func formatContext(snippets []kb.Snippet) string {
	blocks := make([]string, len(snippets))
	for i, s := range snippets {
		blocks[i] = fmt.Sprintf("Title: %s\nExcerpt: %s\nID: %s", s.Title, s.Excerpt, s.ID)
	}
	return strings.Join(blocks, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
