// Package kb scores and ranks knowledge-base articles against a free-text
// query and snapshots the best matches onto a ticket.
package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/retry"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
)

const (
	// MaxSnippets is the most results a search returns.
	MaxSnippets = 3

	// excerptLen is how much of the document body a snippet carries.
	excerptLen = 150

	titleTermScore = 3
)

// Snippet is one ranked retrieval result.
type Snippet struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// DocumentStore is the subset of the store the retriever uses.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]ticket.Document, error)
	ReplaceMatches(ctx context.Context, ticketID string, matches []ticket.KBMatch) error
}

// Retriever searches the knowledge base.
type Retriever struct {
	store    DocumentStore
	recorder *runlog.Recorder
	logger   log.Logger
	policy   retry.Policy
	now      func() time.Time

	// Observe, when set, receives the snippet count of every successful
	// search. Used for metrics.
	Observe func(count int)
}

// New creates a Retriever with the default retry policy.
func New(store DocumentStore, recorder *runlog.Recorder, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.Nop()
	}
	return &Retriever{
		store:    store,
		recorder: recorder,
		logger:   logger,
		policy:   retry.Default,
		now:      time.Now,
	}
}

// Search returns up to MaxSnippets ranked snippets with score > 0. When
// ticketID is non-empty and there are hits, the ticket's KB-match set is
// replaced with the result and a run-log entry is written. Storage errors
// are retried on the shared policy; the final error is logged and returned,
// and the caller must treat it as pipeline failure.
func (r *Retriever) Search(ctx context.Context, query, ticketID string) ([]Snippet, error) {
	startedAt := r.now()

	var (
		snippets []Snippet
		ranked   bool
	)
	err := r.policy.Do(ctx, func(attempt int) error {
		var aerr error
		snippets, ranked, aerr = r.searchOnce(ctx, query, ticketID)
		if aerr != nil {
			r.logger.Warn(ctx, "kb search attempt failed",
				"attempt", attempt,
				"ticket_id", ticketID,
				"error", aerr.Error(),
			)
		}
		return aerr
	})
	if err != nil {
		if ticketID != "" {
			r.recorder.Record(ctx, runlog.Entry{
				TicketID:     ticketID,
				Step:         ticket.StepRAGSearch,
				Status:       ticket.LogFailed,
				StartedAt:    startedAt,
				FinishedAt:   r.now(),
				ErrorMessage: err.Error(),
			})
		}
		return nil, err
	}

	if r.Observe != nil {
		r.Observe(len(snippets))
	}

	// the degenerate paths (no documents, no usable terms) return empty
	// without touching the run log
	if ticketID != "" && ranked {
		r.recorder.Record(ctx, runlog.Entry{
			TicketID:   ticketID,
			Step:       ticket.StepRAGSearch,
			Status:     ticket.LogSuccess,
			StartedAt:  startedAt,
			FinishedAt: r.now(),
			Payload:    map[string]any{"count": len(snippets)},
		})
	}
	return snippets, nil
}

func (r *Retriever) searchOnce(ctx context.Context, query, ticketID string) ([]Snippet, bool, error) {
	docs, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, false, nil
	}

	snippets := rank(docs, terms)

	if ticketID != "" && len(snippets) > 0 {
		matches := make([]ticket.KBMatch, len(snippets))
		for i, s := range snippets {
			matches[i] = ticket.KBMatch{
				TicketID:   ticketID,
				DocumentID: s.ID,
				Title:      s.Title,
				Excerpt:    s.Excerpt,
				Score:      s.Score,
			}
		}
		if err := r.store.ReplaceMatches(ctx, ticketID, matches); err != nil {
			return nil, true, fmt.Errorf("replace matches: %w", err)
		}
	}
	return snippets, true, nil
}

// rank scores every document against the query terms and keeps the top
// results with a positive score.
func rank(docs []ticket.Document, terms []string) []Snippet {
	type scored struct {
		doc   *ticket.Document
		score float64
	}

	all := make([]scored, 0, len(docs))
	for i := range docs {
		titleLower := strings.ToLower(docs[i].Title)
		bodyLower := strings.ToLower(docs[i].Body)

		var score float64
		for _, term := range terms {
			if strings.Contains(titleLower, term) {
				score += titleTermScore
			}
			// occurrence count, not just presence: repeated mentions
			// accumulate score
			score += float64(strings.Count(bodyLower, term))
		}
		all = append(all, scored{doc: &docs[i], score: score})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	var out []Snippet
	for _, s := range all {
		if s.score <= 0 || len(out) == MaxSnippets {
			break
		}
		out = append(out, Snippet{
			ID:      s.doc.ID,
			Title:   s.doc.Title,
			Excerpt: excerpt(s.doc.Body),
			Score:   s.score,
		})
	}
	return out
}

// excerpt truncates a body to the snippet length. The ellipsis is appended
// regardless of whether truncation happened.
func excerpt(body string) string {
	if len(body) > excerptLen {
		body = body[:excerptLen]
	}
	return body + "..."
}

func queryTerms(query string) []string {
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) > 2 {
			terms = append(terms, tok)
		}
	}
	return terms
}
