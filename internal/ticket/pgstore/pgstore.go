// Package pgstore provides a PostgreSQL implementation of ticket.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/sift/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/ticket/pgstore")

//go:embed schema.sql
var schema string

// Store persists the support desk in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store on the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const ticketColumns = `id, customer_email, customer_name, subject, product_area, status,
	ai_category, ai_urgency, ai_summary, ai_reply, ai_follow_ups, ai_confidence,
	ai_token_usage, created_at, updated_at`

// CreateTicket inserts a new ticket, assigning id and created-at when unset.
func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	ctx, span := s.startSpan(ctx, "pgstore.CreateTicket", "INSERT")
	defer span.End()

	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	followUps, err := json.Marshal(emptyIfNil(t.AIFollowUps))
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal follow-ups: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.CustomerEmail, t.CustomerName, t.Subject, t.ProductArea, string(t.Status),
		t.AICategory, t.AIUrgency, t.AISummary, t.AIReply, followUps, t.AIConfidence,
		t.AITokenUsage, t.CreatedAt, nullable(t.UpdatedAt),
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert ticket: %w", err))
	}
	return nil
}

// GetTicket retrieves a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, bool, error) {
	ctx, span := s.startSpan(ctx, "pgstore.GetTicket", "SELECT")
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, spanErr(span, err)
	}
	return t, true, nil
}

// UpdateTicket writes all mutable ticket fields.
func (s *Store) UpdateTicket(ctx context.Context, t *ticket.Ticket) error {
	ctx, span := s.startSpan(ctx, "pgstore.UpdateTicket", "UPDATE")
	defer span.End()

	followUps, err := json.Marshal(emptyIfNil(t.AIFollowUps))
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal follow-ups: %w", err))
	}

	t.UpdatedAt = time.Now()
	_, err = s.pool.Exec(ctx,
		`UPDATE tickets SET
			customer_email = $2, customer_name = $3, subject = $4, product_area = $5,
			status = $6, ai_category = $7, ai_urgency = $8, ai_summary = $9,
			ai_reply = $10, ai_follow_ups = $11, ai_confidence = $12,
			ai_token_usage = $13, updated_at = $14
		 WHERE id = $1`,
		t.ID, t.CustomerEmail, t.CustomerName, t.Subject, t.ProductArea,
		string(t.Status), t.AICategory, t.AIUrgency, t.AISummary,
		t.AIReply, followUps, t.AIConfidence,
		t.AITokenUsage, t.UpdatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update ticket: %w", err))
	}
	return nil
}

// CreateMessage inserts a message, assigning id and created-at when unset.
func (s *Store) CreateMessage(ctx context.Context, m *ticket.Message) error {
	ctx, span := s.startSpan(ctx, "pgstore.CreateMessage", "INSERT")
	defer span.End()

	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, ticket_id, sender_type, body, attachment, fingerprint, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.TicketID, string(m.SenderType), m.Body, m.Attachment, m.Fingerprint, m.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert message: %w", err))
	}
	return nil
}

const messageColumns = `id, ticket_id, sender_type, body, attachment, fingerprint, created_at`

// MessagesByTicket returns a ticket's messages, oldest first.
func (s *Store) MessagesByTicket(ctx context.Context, ticketID string) ([]ticket.Message, error) {
	ctx, span := s.startSpan(ctx, "pgstore.MessagesByTicket", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE ticket_id = $1 ORDER BY created_at, id`,
		ticketID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	return scanMessages(rows, span)
}

// RecentMessagesByEmail returns messages in the lookback window whose owning
// ticket belongs to the customer email, oldest first.
func (s *Store) RecentMessagesByEmail(ctx context.Context, email string, since time.Time) ([]ticket.Message, error) {
	ctx, span := s.startSpan(ctx, "pgstore.RecentMessagesByEmail", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.ticket_id, m.sender_type, m.body, m.attachment, m.fingerprint, m.created_at
		 FROM messages m
		 JOIN tickets t ON t.id = m.ticket_id
		 WHERE t.customer_email = $1 AND m.created_at >= $2
		 ORDER BY m.created_at, m.id`,
		email, since,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query recent messages: %w", err))
	}
	defer rows.Close()

	return scanMessages(rows, span)
}

// CreateDocument inserts a KB document, assigning id and created-at when
// unset.
func (s *Store) CreateDocument(ctx context.Context, d *ticket.Document) error {
	ctx, span := s.startSpan(ctx, "pgstore.CreateDocument", "INSERT")
	defer span.End()

	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO kb_documents (id, title, body, tags, created_at) VALUES ($1,$2,$3,$4,$5)`,
		d.ID, d.Title, d.Body, d.Tags, d.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert document: %w", err))
	}
	return nil
}

// ListDocuments returns all KB documents, oldest first.
func (s *Store) ListDocuments(ctx context.Context) ([]ticket.Document, error) {
	ctx, span := s.startSpan(ctx, "pgstore.ListDocuments", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, body, tags, created_at FROM kb_documents ORDER BY created_at, id`)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query documents: %w", err))
	}
	defer rows.Close()

	var out []ticket.Document
	for rows.Next() {
		var d ticket.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Body, &d.Tags, &d.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan document: %w", err))
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate documents: %w", err))
	}
	return out, nil
}

// ReplaceMatches deletes the ticket's existing KB matches and inserts the
// given set in one transaction.
func (s *Store) ReplaceMatches(ctx context.Context, ticketID string, matches []ticket.KBMatch) error {
	ctx, span := s.startSpan(ctx, "pgstore.ReplaceMatches", "DELETE+INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM kb_matches WHERE ticket_id = $1`, ticketID); err != nil {
		return spanErr(span, fmt.Errorf("delete matches: %w", err))
	}

	for i := range matches {
		m := &matches[i]
		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		m.TicketID = ticketID
		_, err := tx.Exec(ctx,
			`INSERT INTO kb_matches (id, ticket_id, document_id, title, excerpt, score, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			m.ID, m.TicketID, m.DocumentID, m.Title, m.Excerpt, m.Score, m.CreatedAt,
		)
		if err != nil {
			return spanErr(span, fmt.Errorf("insert match: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// MatchesByTicket returns the ticket's current KB-match set, best first.
func (s *Store) MatchesByTicket(ctx context.Context, ticketID string) ([]ticket.KBMatch, error) {
	ctx, span := s.startSpan(ctx, "pgstore.MatchesByTicket", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, ticket_id, document_id, title, excerpt, score, created_at
		 FROM kb_matches WHERE ticket_id = $1 ORDER BY score DESC, id`,
		ticketID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query matches: %w", err))
	}
	defer rows.Close()

	var out []ticket.KBMatch
	for rows.Next() {
		var m ticket.KBMatch
		if err := rows.Scan(&m.ID, &m.TicketID, &m.DocumentID, &m.Title, &m.Excerpt, &m.Score, &m.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan match: %w", err))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate matches: %w", err))
	}
	return out, nil
}

// InsertRunLog appends a run-log entry, assigning an id when unset.
func (s *Store) InsertRunLog(ctx context.Context, e *ticket.RunLog) error {
	ctx, span := s.startSpan(ctx, "pgstore.InsertRunLog", "INSERT")
	defer span.End()

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (id, ticket_id, step, status, started_at, finished_at,
			latency_ms, error_code, error_message, payload_preview)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, nullableString(e.TicketID), string(e.Step), string(e.Status),
		e.StartedAt, nullable(e.FinishedAt), e.LatencyMS, e.ErrorCode, e.ErrorMessage, e.PayloadPreview,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert run log: %w", err))
	}
	return nil
}

// ListRunLogs returns up to limit entries, newest first.
func (s *Store) ListRunLogs(ctx context.Context, limit int) ([]ticket.RunLog, error) {
	ctx, span := s.startSpan(ctx, "pgstore.ListRunLogs", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, ticket_id, step, status, started_at, finished_at,
			latency_ms, error_code, error_message, payload_preview
		 FROM run_logs ORDER BY started_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query run logs: %w", err))
	}
	defer rows.Close()

	var out []ticket.RunLog
	for rows.Next() {
		var (
			e          ticket.RunLog
			ticketID   *string
			finishedAt *time.Time
			step       string
			status     string
		)
		if err := rows.Scan(&e.ID, &ticketID, &step, &status, &e.StartedAt, &finishedAt,
			&e.LatencyMS, &e.ErrorCode, &e.ErrorMessage, &e.PayloadPreview); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan run log: %w", err))
		}
		if ticketID != nil {
			e.TicketID = *ticketID
		}
		if finishedAt != nil {
			e.FinishedAt = *finishedAt
		}
		e.Step = ticket.Step(step)
		e.Status = ticket.LogStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate run logs: %w", err))
	}
	return out, nil
}

// InsertOutbox stages an outbox entry, assigning id and created-at when
// unset.
func (s *Store) InsertOutbox(ctx context.Context, e *ticket.OutboxEmail) error {
	ctx, span := s.startSpan(ctx, "pgstore.InsertOutbox", "INSERT")
	defer span.End()

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_outbox (id, recipient, subject, body, status, error, sent_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.To, e.Subject, e.Body, string(e.Status), e.Error, nullable(e.SentAt), e.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert outbox: %w", err))
	}
	return nil
}

// UpdateOutbox writes the entry's delivery state in place.
func (s *Store) UpdateOutbox(ctx context.Context, e *ticket.OutboxEmail) error {
	ctx, span := s.startSpan(ctx, "pgstore.UpdateOutbox", "UPDATE")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`UPDATE email_outbox SET status = $2, error = $3, sent_at = $4 WHERE id = $1`,
		e.ID, string(e.Status), e.Error, nullable(e.SentAt),
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update outbox: %w", err))
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func scanMessages(rows pgx.Rows, span trace.Span) ([]ticket.Message, error) {
	var out []ticket.Message
	for rows.Next() {
		var (
			m      ticket.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &sender, &m.Body, &m.Attachment, &m.Fingerprint, &m.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan message: %w", err))
		}
		m.SenderType = ticket.SenderType(sender)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}

func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var (
		t         ticket.Ticket
		status    string
		followUps []byte
		updatedAt *time.Time
	)
	err := row.Scan(
		&t.ID, &t.CustomerEmail, &t.CustomerName, &t.Subject, &t.ProductArea, &status,
		&t.AICategory, &t.AIUrgency, &t.AISummary, &t.AIReply, &followUps, &t.AIConfidence,
		&t.AITokenUsage, &t.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = ticket.Status(status)
	if updatedAt != nil {
		t.UpdatedAt = *updatedAt
	}
	if err := json.Unmarshal(followUps, &t.AIFollowUps); err != nil {
		return nil, fmt.Errorf("unmarshal follow-ups: %w", err)
	}
	return &t, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
