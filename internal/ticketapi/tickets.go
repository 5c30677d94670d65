package ticketapi

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/sift/internal/dedupe"
	"github.com/linnemanlabs/sift/internal/ticket"
	"github.com/linnemanlabs/sift/internal/webhook"
)

type submitRequest struct {
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	Subject       string `json:"subject"`
	Message       string `json:"message"`
	ProductArea   string `json:"product_area"`
	Attachment    string `json:"attachment,omitempty"`

	// WebsiteURL is a honeypot. Real clients never fill it; bots that do
	// are dropped without a trace of rejection in the response.
	WebsiteURL string `json:"website_url,omitempty"`
}

func (s *submitRequest) validate() []string {
	var problems []string
	if _, err := mail.ParseAddress(s.CustomerEmail); err != nil {
		problems = append(problems, "customer_email must be a valid email address")
	}
	if len(strings.TrimSpace(s.CustomerName)) < 2 {
		problems = append(problems, "customer_name must be at least 2 characters")
	}
	if len(strings.TrimSpace(s.Subject)) < 5 {
		problems = append(problems, "subject must be at least 5 characters")
	}
	if len(strings.TrimSpace(s.Message)) < 10 {
		problems = append(problems, "message must be at least 10 characters")
	}
	return problems
}

type submitResponse struct {
	TicketID     string `json:"ticket_id"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated"`
}

func (a *API) handleSubmitTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `{"error":"invalid payload"}`)
		return
	}

	if req.WebsiteURL != "" {
		a.logger.Warn(ctx, "honeypot triggered, dropping submission", "ip", clientIP(r))
		a.countSubmit("honeypot")
		// indistinguishable from an accepted submission
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if a.limiter != nil && !a.limiter.Allow(clientIP(r)) {
		if a.metrics != nil {
			a.metrics.RateLimitRejects.Inc()
		}
		a.countSubmit("rate_limited")
		writeError(w, http.StatusTooManyRequests, `{"error":"too many requests, please try again later"}`)
		return
	}

	if problems := req.validate(); len(problems) > 0 {
		a.countSubmit("invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": problems})
		return
	}

	existingID, duplicate, err := a.dedupe.Check(ctx, req.CustomerEmail, req.Message)
	if err != nil {
		a.logger.Error(ctx, err, "dedupe check failed")
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	if duplicate {
		msg := &ticket.Message{
			TicketID:    existingID,
			SenderType:  ticket.SenderCustomer,
			Body:        req.Message,
			Attachment:  req.Attachment,
			Fingerprint: dedupe.Fingerprint(req.Message),
		}
		if err := a.store.CreateMessage(ctx, msg); err != nil {
			a.logger.Error(ctx, err, "failed to append deduplicated message", "ticket_id", existingID)
			writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
			return
		}

		t, ok, err := a.store.GetTicket(ctx, existingID)
		if err != nil || !ok {
			a.logger.Error(ctx, err, "failed to load deduplicated ticket", "ticket_id", existingID)
			writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
			return
		}

		a.countSubmit("deduplicated")
		writeJSON(w, http.StatusOK, submitResponse{
			TicketID:     existingID,
			Status:       string(t.Status),
			Deduplicated: true,
		})
		return
	}

	t := &ticket.Ticket{
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Subject:       req.Subject,
		ProductArea:   req.ProductArea,
		Status:        ticket.StatusNew,
	}
	if err := a.store.CreateTicket(ctx, t); err != nil {
		a.logger.Error(ctx, err, "failed to create ticket")
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	msg := &ticket.Message{
		TicketID:    t.ID,
		SenderType:  ticket.SenderCustomer,
		Body:        req.Message,
		Attachment:  req.Attachment,
		Fingerprint: dedupe.Fingerprint(req.Message),
	}
	if err := a.store.CreateMessage(ctx, msg); err != nil {
		a.logger.Error(ctx, err, "failed to create first message", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	if a.webhooks != nil {
		a.webhooks.Go(ctx, webhook.EventCreated, t.ID)
	}

	// The workflow runs inside the request so the response carries the final
	// status. It never returns an error; failures land in ticket state.
	a.workflow.Run(ctx, t.ID)

	final, ok, err := a.store.GetTicket(ctx, t.ID)
	if err != nil || !ok {
		a.logger.Error(ctx, err, "failed to reload ticket after triage", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	if final.Status == ticket.StatusFailed && a.webhooks != nil {
		a.webhooks.Go(ctx, webhook.EventFailed, t.ID)
	}

	a.countSubmit("created")
	writeJSON(w, http.StatusCreated, submitResponse{
		TicketID: t.ID,
		Status:   string(final.Status),
	})
}

type ticketResponse struct {
	Ticket   *ticket.Ticket   `json:"ticket"`
	Messages []ticket.Message `json:"messages"`
	Matches  []ticket.KBMatch `json:"kb_matches"`
}

func (a *API) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("sift.ticket.id", id))

	t, ok, err := a.store.GetTicket(ctx, id)
	if err != nil {
		a.logger.Error(ctx, err, "failed to get ticket", "ticket_id", id)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, `{"error":"not found"}`)
		return
	}

	msgs, err := a.store.MessagesByTicket(ctx, id)
	if err != nil {
		a.logger.Error(ctx, err, "failed to list messages", "ticket_id", id)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	matches, err := a.store.MatchesByTicket(ctx, id)
	if err != nil {
		a.logger.Error(ctx, err, "failed to list kb matches", "ticket_id", id)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	span.SetAttributes(attribute.String("sift.ticket.status", string(t.Status)))

	writeJSON(w, http.StatusOK, ticketResponse{
		Ticket:   t,
		Messages: msgs,
		Matches:  matches,
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
