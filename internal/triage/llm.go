package triage

import (
	"context"
	"fmt"
)

// Provider is the interface for any LLM backend producing triage verdicts.
type Provider interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*Verdict, error)
}

// AnalyzeRequest carries everything the backend sees for one ticket. The
// KB context is passed through verbatim so the backend can honor the
// citation instruction in the prompt.
type AnalyzeRequest struct {
	Subject   string
	Body      string
	KBContext string
}

// BuildPrompt constructs the user prompt for the analysis call.
func BuildPrompt(req *AnalyzeRequest) string {
	kbContext := req.KBContext
	if kbContext == "" {
		kbContext = "None"
	}

	return fmt.Sprintf(`You are a support triage assistant. Analyze the ticket.

Ticket Subject: %s
Ticket Message: %s

Relevant Knowledge Base Articles:
%s

Instructions:
1. Summarize the issue (max 60 words).
2. Categorize it (billing, bug, account, feature_request, how_to, other).
3. Determine urgency (low, medium, high).
4. Draft a polite, helpful, and concise suggested reply.
   CRITICAL: If the provided Knowledge Base Articles are relevant, you MUST cite them in the reply (e.g. "Sources: [Title]").
5. Generate 2-3 follow-up questions to clarify the issue if needed.
6. Estimate confidence score (0.0 to 1.0).

Respond with a single JSON object with keys: summary, category, urgency, suggested_reply, follow_up_questions, confidence.`,
		req.Subject, req.Body, kbContext)
}
