package ticket

import (
	"context"
	"time"
)

// Store is the persistence interface for the support desk. All operations
// are assumed strongly consistent.
type Store interface {
	CreateTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, bool, error)
	UpdateTicket(ctx context.Context, t *Ticket) error

	CreateMessage(ctx context.Context, m *Message) error
	MessagesByTicket(ctx context.Context, ticketID string) ([]Message, error)

	// RecentMessagesByEmail returns messages created at or after since whose
	// owning ticket belongs to the given customer email, oldest first.
	RecentMessagesByEmail(ctx context.Context, email string, since time.Time) ([]Message, error)

	CreateDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context) ([]Document, error)

	// ReplaceMatches discards any existing KB matches for the ticket and
	// stores the given set.
	ReplaceMatches(ctx context.Context, ticketID string, matches []KBMatch) error
	MatchesByTicket(ctx context.Context, ticketID string) ([]KBMatch, error)

	InsertRunLog(ctx context.Context, e *RunLog) error
	ListRunLogs(ctx context.Context, limit int) ([]RunLog, error)

	InsertOutbox(ctx context.Context, e *OutboxEmail) error
	UpdateOutbox(ctx context.Context, e *OutboxEmail) error
}
