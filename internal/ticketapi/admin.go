package ticketapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/sift/internal/dedupe"
	"github.com/linnemanlabs/sift/internal/runlog"
	"github.com/linnemanlabs/sift/internal/ticket"
	"github.com/linnemanlabs/sift/internal/webhook"
)

// loadTicket fetches a ticket for an admin handler, writing the error
// response itself. The caller bails when it returns nil.
func (a *API) loadTicket(w http.ResponseWriter, r *http.Request) *ticket.Ticket {
	id := chi.URLParam(r, "id")
	t, ok, err := a.store.GetTicket(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get ticket", "ticket_id", id)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return nil
	}
	if !ok {
		writeError(w, http.StatusNotFound, `{"error":"not found"}`)
		return nil
	}
	return t
}

// audit records an admin action in the run log alongside the pipeline's own
// entries, so one timeline covers both automated and human steps.
func (a *API) audit(r *http.Request, ticketID, action string) {
	if a.recorder == nil {
		return
	}
	now := time.Now()
	a.recorder.Record(r.Context(), runlog.Entry{
		TicketID:   ticketID,
		Step:       ticket.StepSystem,
		Status:     ticket.LogSuccess,
		StartedAt:  now,
		FinishedAt: now,
		Payload:    map[string]any{"action": action, "actor": "admin"},
	})
}

func (a *API) handleRetryTicket(w http.ResponseWriter, r *http.Request) {
	t := a.loadTicket(w, r)
	if t == nil {
		return
	}

	a.workflow.Run(r.Context(), t.ID)
	a.audit(r, t.ID, "retry")

	final, ok, err := a.store.GetTicket(r.Context(), t.ID)
	if err != nil || !ok {
		a.logger.Error(r.Context(), err, "failed to reload ticket after retry", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	if final.Status == ticket.StatusFailed && a.webhooks != nil {
		a.webhooks.Go(r.Context(), webhook.EventFailed, t.ID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": t.ID,
		"status":    string(final.Status),
	})
}

func (a *API) handleApproveTicket(w http.ResponseWriter, r *http.Request) {
	t := a.loadTicket(w, r)
	if t == nil {
		return
	}

	if t.AIReply == "" {
		writeError(w, http.StatusConflict, `{"error":"ticket has no suggested reply to approve"}`)
		return
	}

	outboxID, err := a.email.Send(r.Context(), t.CustomerEmail, "Re: "+t.Subject, t.AIReply, t.ID)
	if a.metrics != nil {
		outcome := "sent"
		if err != nil {
			outcome = "failed"
		}
		a.metrics.OutboxSends.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "approve: email send failed", "ticket_id", t.ID)
		writeError(w, http.StatusBadGateway, `{"error":"email send failed"}`)
		return
	}

	// the sent reply becomes part of the conversation
	reply := &ticket.Message{
		TicketID:    t.ID,
		SenderType:  ticket.SenderAgent,
		Body:        t.AIReply,
		Fingerprint: dedupe.Fingerprint(t.AIReply),
	}
	if err := a.store.CreateMessage(r.Context(), reply); err != nil {
		a.logger.Error(r.Context(), err, "approve: failed to append reply message", "ticket_id", t.ID)
	}

	t.Status = ticket.StatusReplied
	if err := a.store.UpdateTicket(r.Context(), t); err != nil {
		a.logger.Error(r.Context(), err, "approve: failed to update ticket", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	a.audit(r, t.ID, "approve")
	if a.webhooks != nil {
		a.webhooks.Go(r.Context(), webhook.EventApproved, t.ID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": t.ID,
		"status":    string(t.Status),
		"outbox_id": outboxID,
	})
}

func (a *API) handleEscalateTicket(w http.ResponseWriter, r *http.Request) {
	t := a.loadTicket(w, r)
	if t == nil {
		return
	}

	t.Status = ticket.StatusEscalated
	if err := a.store.UpdateTicket(r.Context(), t); err != nil {
		a.logger.Error(r.Context(), err, "escalate: failed to update ticket", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	a.audit(r, t.ID, "escalate")
	if a.webhooks != nil {
		a.webhooks.Go(r.Context(), webhook.EventEscalated, t.ID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": t.ID,
		"status":    string(t.Status),
	})
}

type draftRequest struct {
	SuggestedReply string `json:"suggested_reply"`
}

func (a *API) handleDraftReply(w http.ResponseWriter, r *http.Request) {
	t := a.loadTicket(w, r)
	if t == nil {
		return
	}

	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `{"error":"invalid payload"}`)
		return
	}
	if strings.TrimSpace(req.SuggestedReply) == "" {
		writeError(w, http.StatusBadRequest, `{"error":"suggested_reply is required"}`)
		return
	}

	t.AIReply = req.SuggestedReply
	if err := a.store.UpdateTicket(r.Context(), t); err != nil {
		a.logger.Error(r.Context(), err, "draft: failed to update ticket", "ticket_id", t.ID)
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	a.audit(r, t.ID, "draft")
	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": t.ID,
		"status":    string(t.Status),
	})
}
