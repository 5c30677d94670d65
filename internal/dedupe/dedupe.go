// Package dedupe decides whether an inbound message belongs to an existing
// ticket, using an exact fingerprint pass and a fuzzy token-overlap pass
// over the sender's recent messages.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

const (
	// Lookback is how far back we consider a sender's messages for
	// duplicate detection.
	Lookback = 10 * time.Minute

	// SimilarityThreshold is the Jaccard score a candidate must exceed to
	// count as a fuzzy duplicate.
	SimilarityThreshold = 0.75
)

// MessageStore is the subset of the store the engine reads.
type MessageStore interface {
	RecentMessagesByEmail(ctx context.Context, email string, since time.Time) ([]ticket.Message, error)
}

// Engine checks inbound messages against recent traffic.
type Engine struct {
	store    MessageStore
	recorder *runlog.Recorder
	logger   log.Logger
	now      func() time.Time

	// Hit, when set, receives the match type (exact or fuzzy) on every
	// duplicate. Used for metrics.
	Hit func(matchType string)
}

// New creates a deduplication engine.
func New(store MessageStore, recorder *runlog.Recorder, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Check returns the id of an existing ticket the message should attach to,
// or ("", false) when the caller should create a new ticket.
//
// A duplicate writes exactly one run-log entry; a clean miss writes none.
// Downstream log consumers rely on absence-of-log meaning no duplicate, so
// the asymmetry is deliberate.
func (e *Engine) Check(ctx context.Context, email, message string) (string, bool, error) {
	startedAt := e.now()
	fingerprint := Fingerprint(message)
	since := startedAt.Add(-Lookback)

	recent, err := e.store.RecentMessagesByEmail(ctx, email, since)
	if err != nil {
		return "", false, fmt.Errorf("list recent messages: %w", err)
	}

	// exact pass: identical normalization fingerprint
	for i := range recent {
		if recent[i].Fingerprint != fingerprint {
			continue
		}
		e.hit("exact")
		e.logMatch(ctx, startedAt, recent[i].TicketID, map[string]any{
			"duplicateOf": recent[i].TicketID,
			"type":        "exact",
		})
		return recent[i].TicketID, true, nil
	}

	// fuzzy pass: first candidate over the similarity threshold wins
	for i := range recent {
		similarity := Jaccard(message, recent[i].Body)
		if similarity <= SimilarityThreshold {
			continue
		}
		e.hit("fuzzy")
		e.logMatch(ctx, startedAt, recent[i].TicketID, map[string]any{
			"duplicateOf": recent[i].TicketID,
			"type":        "fuzzy",
			"similarity":  similarity,
		})
		return recent[i].TicketID, true, nil
	}

	return "", false, nil
}

func (e *Engine) hit(matchType string) {
	if e.Hit != nil {
		e.Hit(matchType)
	}
}

func (e *Engine) logMatch(ctx context.Context, startedAt time.Time, ticketID string, payload map[string]any) {
	e.recorder.Record(ctx, runlog.Entry{
		TicketID:   ticketID,
		Step:       ticket.StepDedupe,
		Status:     ticket.LogSuccess,
		StartedAt:  startedAt,
		FinishedAt: e.now(),
		Payload:    payload,
	})
}

// Fingerprint returns the deterministic hash of the normalized text:
// lowercase, alphanumeric characters only, sha256 hex.
func Fingerprint(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Tokens returns the normalized token set of a text: lowercase, punctuation
// stripped, whitespace split, tokens of length <= 2 dropped.
func Tokens(text string) map[string]struct{} {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		}
	}
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard returns the intersection-over-union similarity of the two texts'
// token sets. An empty set on either side yields 0.
func Jaccard(a, b string) float64 {
	ta := Tokens(a)
	tb := Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}
