// Package ticketapi exposes the support desk over HTTP: public ticket
// submission and lookup, plus token-protected agent operations.
package ticketapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/authmw"
	"github.com/linnemanlabs/sift/internal/ratelimit"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
	"github.com/linnemanlabs/sift/internal/triage"
	"github.com/linnemanlabs/sift/internal/webhook"
)

// defaultLogLimit bounds the logs endpoint when the config leaves it unset.
const defaultLogLimit = 200

// Deduper decides whether a submission attaches to an existing ticket.
type Deduper interface {
	Check(ctx context.Context, email, message string) (string, bool, error)
}

// Runner executes the triage workflow for one ticket.
type Runner interface {
	Run(ctx context.Context, ticketID string)
}

// EmailSender stages and sends an outbound email, returning the outbox id.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body, ticketID string) (string, error)
}

// Notifier fire-and-forgets a ticket event to the webhook endpoint.
type Notifier interface {
	Go(ctx context.Context, event webhook.Event, ticketID string)
}

// Config collects the API's dependencies.
type Config struct {
	Logger     log.Logger
	Store      ticket.Store
	Dedupe     Deduper
	Workflow   Runner
	Webhooks   Notifier
	Email      EmailSender
	Limiter    *ratelimit.Limiter
	Metrics    *triage.Metrics
	Recorder   *runlog.Recorder
	AdminToken string
	LogLimit   int
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger     log.Logger
	store      ticket.Store
	dedupe     Deduper
	workflow   Runner
	webhooks   Notifier
	email      EmailSender
	limiter    *ratelimit.Limiter
	metrics    *triage.Metrics
	recorder   *runlog.Recorder
	adminToken string
	logLimit   int
}

// New creates a new API handler.
func New(c Config) *API {
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if c.Store == nil {
		panic(xerrors.New("store is required"))
	}
	if c.Dedupe == nil || c.Workflow == nil {
		panic(xerrors.New("dedupe engine and workflow are required"))
	}
	if c.LogLimit <= 0 {
		c.LogLimit = defaultLogLimit
	}
	return &API{
		logger:     c.Logger,
		store:      c.Store,
		dedupe:     c.Dedupe,
		workflow:   c.Workflow,
		webhooks:   c.Webhooks,
		email:      c.Email,
		limiter:    c.Limiter,
		metrics:    c.Metrics,
		recorder:   c.Recorder,
		adminToken: c.AdminToken,
		logLimit:   c.LogLimit,
	}
}

// RegisterRoutes attaches API endpoints to the router. Agent operations sit
// behind the bearer-token middleware.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tickets", a.handleSubmitTicket)
		r.Get("/tickets/{id}", a.handleGetTicket)

		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(a.adminToken))
			r.Post("/tickets/{id}/retry", a.handleRetryTicket)
			r.Post("/tickets/{id}/approve", a.handleApproveTicket)
			r.Post("/tickets/{id}/escalate", a.handleEscalateTicket)
			r.Post("/tickets/{id}/draft", a.handleDraftReply)
			r.Post("/kb", a.handleCreateDocument)
			r.Get("/kb", a.handleListDocuments)
			r.Get("/logs", a.handleListRunLogs)
		})
	})
}

func (a *API) countSubmit(result string) {
	if a.metrics != nil {
		a.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body+"\n")
}
