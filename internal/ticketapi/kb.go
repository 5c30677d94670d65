package ticketapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/linnemanlabs/sift/internal/ticket"
)

type createDocumentRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tags  string `json:"tags,omitempty"`
}

func (r *createDocumentRequest) validate() []string {
	var problems []string
	if len(strings.TrimSpace(r.Title)) < 5 {
		problems = append(problems, "title must be at least 5 characters")
	}
	if len(strings.TrimSpace(r.Body)) < 20 {
		problems = append(problems, "body must be at least 20 characters")
	}
	return problems
}

func (a *API) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `{"error":"invalid payload"}`)
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": problems})
		return
	}

	doc := &ticket.Document{
		Title: req.Title,
		Body:  req.Body,
		Tags:  req.Tags,
	}
	if err := a.store.CreateDocument(r.Context(), doc); err != nil {
		a.logger.Error(r.Context(), err, "failed to create kb document")
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.store.ListDocuments(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list kb documents")
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (a *API) handleListRunLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.store.ListRunLogs(r.Context(), a.logLimit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list run logs")
		writeError(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
