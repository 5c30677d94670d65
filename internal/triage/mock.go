package triage

import (
	"context"
	"time"
)

// MockDelay simulates backend latency on the mock path.
const MockDelay = 500 * time.Millisecond

// Mock is the deterministic provider used when no backend credential is
// configured. It keeps the pipeline runnable and testable without live
// external dependencies.
type Mock struct {
	// Delay overrides the simulated latency; zero means MockDelay.
	Delay time.Duration
}

// Analyze returns a fixed verdict after a short simulated delay.
func (m *Mock) Analyze(ctx context.Context, _ *AnalyzeRequest) (*Verdict, error) {
	delay := m.Delay
	if delay == 0 {
		delay = MockDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	return &Verdict{
		Summary:  "Customer is asking about a feature.",
		Category: CategoryFeatureRequest,
		Urgency:  UrgencyLow,
		Reply:    "Thank you for reaching out. We have logged your request. Based on our documentation, this feature is currently in beta.",
		FollowUps: []string{
			"Can you provide a use case?",
			"How critical is this?",
		},
		Confidence: 0.95,
		TokenUsage: "mock-usage",
	}, nil
}
