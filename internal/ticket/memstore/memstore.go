// Package memstore provides an in-memory implementation of ticket.Store.
// Suitable for dev and testing; all methods return copies.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/sift/internal/ticket"
)

// Store holds the support-desk entities in memory.
type Store struct {
	mu        sync.RWMutex
	tickets   map[string]*ticket.Ticket
	messages  map[string]*ticket.Message   // message ID -> message
	documents map[string]*ticket.Document  // document ID -> document
	matches   map[string][]ticket.KBMatch  // ticket ID -> current match set
	runLogs   []ticket.RunLog              // append-only
	outbox    map[string]*ticket.OutboxEmail
	now       func() time.Time
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		tickets:   make(map[string]*ticket.Ticket),
		messages:  make(map[string]*ticket.Message),
		documents: make(map[string]*ticket.Document),
		matches:   make(map[string][]ticket.KBMatch),
		outbox:    make(map[string]*ticket.OutboxEmail),
		now:       time.Now,
	}
}

// CreateTicket stores a copy of the ticket, assigning id and created-at
// when unset.
func (s *Store) CreateTicket(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

// GetTicket retrieves a ticket by ID. Returns a copy.
func (s *Store) GetTicket(_ context.Context, id string) (*ticket.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	cp := *t
	return &cp, true, nil
}

// UpdateTicket replaces the stored ticket with a copy of t.
func (s *Store) UpdateTicket(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UpdatedAt = s.now()
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

// CreateMessage stores a copy of the message, assigning id and created-at
// when unset.
func (s *Store) CreateMessage(_ context.Context, m *ticket.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

// MessagesByTicket returns a ticket's messages, oldest first.
func (s *Store) MessagesByTicket(_ context.Context, ticketID string) ([]ticket.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ticket.Message
	for _, m := range s.messages {
		if m.TicketID == ticketID {
			out = append(out, *m)
		}
	}
	sortByCreated(out)
	return out, nil
}

// RecentMessagesByEmail returns messages created at or after since whose
// owning ticket belongs to the customer email, oldest first.
func (s *Store) RecentMessagesByEmail(_ context.Context, email string, since time.Time) ([]ticket.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ticket.Message
	for _, m := range s.messages {
		if m.CreatedAt.Before(since) {
			continue
		}
		t, ok := s.tickets[m.TicketID]
		if !ok || t.CustomerEmail != email {
			continue
		}
		out = append(out, *m)
	}
	sortByCreated(out)
	return out, nil
}

// CreateDocument stores a copy of the KB document, assigning id and
// created-at when unset.
func (s *Store) CreateDocument(_ context.Context, d *ticket.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

// ListDocuments returns all KB documents, oldest first.
func (s *Store) ListDocuments(_ context.Context) ([]ticket.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ticket.Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ReplaceMatches discards the ticket's existing KB matches and stores the
// given set.
func (s *Store) ReplaceMatches(_ context.Context, ticketID string, matches []ticket.KBMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]ticket.KBMatch, len(matches))
	for i, m := range matches {
		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		m.TicketID = ticketID
		cp[i] = m
	}
	s.matches[ticketID] = cp
	return nil
}

// MatchesByTicket returns the ticket's current KB-match set.
func (s *Store) MatchesByTicket(_ context.Context, ticketID string) ([]ticket.KBMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ticket.KBMatch, len(s.matches[ticketID]))
	copy(out, s.matches[ticketID])
	return out, nil
}

// InsertRunLog appends a run-log entry, assigning id and started-at when
// unset.
func (s *Store) InsertRunLog(_ context.Context, e *ticket.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.now()
	}
	s.runLogs = append(s.runLogs, *e)
	return nil
}

// ListRunLogs returns up to limit entries, newest first.
func (s *Store) ListRunLogs(_ context.Context, limit int) ([]ticket.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.runLogs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ticket.RunLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.runLogs[i])
	}
	return out, nil
}

// InsertOutbox stores a copy of the outbox entry, assigning id and
// created-at when unset.
func (s *Store) InsertOutbox(_ context.Context, e *ticket.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	s.outbox[e.ID] = &cp
	return nil
}

// UpdateOutbox replaces the stored outbox entry with a copy of e.
func (s *Store) UpdateOutbox(_ context.Context, e *ticket.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.outbox[e.ID] = &cp
	return nil
}

func sortByCreated(msgs []ticket.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
