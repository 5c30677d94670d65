package ticket

import "time"

// Status tracks where a ticket is in its lifecycle.
type Status string

const (
	// StatusNew means created, triage not yet run
	StatusNew Status = "new"

	// StatusNeedsApproval means triage produced a confident reply awaiting a human
	StatusNeedsApproval Status = "needs_approval"

	// StatusNeedsInfo means triage confidence was too low to draft a reply
	StatusNeedsInfo Status = "needs_info"

	// StatusReplied means the suggested reply was approved and sent
	StatusReplied Status = "replied"

	// StatusWaitingOnCustomer means we are blocked on a customer response
	StatusWaitingOnCustomer Status = "waiting_on_customer"

	// StatusEscalated means a human pulled the ticket out of the automated flow
	StatusEscalated Status = "escalated"

	// StatusFailed means the triage pipeline errored out
	StatusFailed Status = "failed"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// Ticket is one customer issue thread. AI* fields are written only by the
// triage workflow.
type Ticket struct {
	ID            string    `json:"id"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	Subject       string    `json:"subject"`
	ProductArea   string    `json:"product_area"`
	Status        Status    `json:"status"`
	AICategory    string    `json:"ai_category,omitempty"`
	AIUrgency     string    `json:"ai_urgency,omitempty"`
	AISummary     string    `json:"ai_summary,omitempty"`
	AIReply       string    `json:"ai_suggested_reply,omitempty"`
	AIFollowUps   []string  `json:"ai_follow_up_questions,omitempty"`
	AIConfidence  *float64  `json:"ai_confidence,omitempty"`
	AITokenUsage  string    `json:"ai_token_usage,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Message is one utterance within a ticket. Immutable once created.
type Message struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticket_id"`
	SenderType  SenderType `json:"sender_type"`
	Body        string     `json:"body"`
	Attachment  string     `json:"attachment,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Document is a knowledge-base article. Read-only from the pipeline's
// perspective.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      string    `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KBMatch is a snapshot of one retrieval hit for a ticket. The set for a
// ticket is fully replaced every time retrieval runs.
type KBMatch struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Step names one pipeline stage in the run log.
type Step string

const (
	StepTriage    Step = "triage"
	StepRAGSearch Step = "rag_search"
	StepEmailSend Step = "email_send"
	StepDedupe    Step = "dedupe"
	StepWebhook   Step = "webhook"
	StepSystem    Step = "system"
)

// LogStatus is the outcome of a logged step.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogPending LogStatus = "pending"
)

// RunLog is one audit record for a pipeline step execution. Append-only.
// TicketID is empty for system events that are not ticket-scoped.
type RunLog struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticket_id,omitempty"`
	Step           Step      `json:"step"`
	Status         LogStatus `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
	LatencyMS      *int64    `json:"latency_ms,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	PayloadPreview string    `json:"payload_preview,omitempty"`
}

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEmail is the durable staging record for one outbound notification.
// It is created before the send attempt and updated in place on completion,
// so a crash mid-send leaves a visible pending row.
type OutboxEmail struct {
	ID        string       `json:"id"`
	To        string       `json:"to"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Status    OutboxStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	SentAt    time.Time    `json:"sent_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
