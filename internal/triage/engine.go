package triage

import (
	"context"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/retry"
)

// Engine wraps the LLM backend with retry and schema validation.
// Intermediate failures go only to the structured logger; the final error
// is returned to the orchestrator, which owns the durable run log.
type Engine struct {
	provider Provider
	logger   log.Logger
	policy   retry.Policy
}

// NewEngine creates an analysis engine with the default retry policy.
func NewEngine(provider Provider, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		provider: provider,
		logger:   logger,
		policy:   retry.Default,
	}
}

// Analyze produces a validated verdict for the ticket, retrying transient
// backend and schema-validation failures on the shared schedule.
func (e *Engine) Analyze(ctx context.Context, ticketID string, req *AnalyzeRequest) (*Verdict, error) {
	var verdict *Verdict
	err := e.policy.Do(ctx, func(attempt int) error {
		v, aerr := e.provider.Analyze(ctx, req)
		if aerr == nil {
			aerr = v.Validate()
		}
		if aerr != nil {
			e.logger.Warn(ctx, "analysis attempt failed",
				"attempt", attempt,
				"ticket_id", ticketID,
				"error", aerr.Error(),
			)
			return aerr
		}
		verdict = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verdict, nil
}
