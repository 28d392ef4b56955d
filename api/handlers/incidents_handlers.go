package handlers

import (
	"net/http"

	"kestrel-dcr/core/rbac"
	"kestrel-dcr/core/store"
	"kestrel-dcr/core/utils"
	"kestrel-dcr/core/workflow"
)

type IncidentsHandler struct {
	workflow  *workflow.Service
	incidents *store.IncidentsRepo
	cases     *store.CasesRepo
	logger    *utils.Logger
}

func NewIncidentsHandler(wf *workflow.Service, incidents *store.IncidentsRepo, cases *store.CasesRepo, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{workflow: wf, incidents: incidents, cases: cases, logger: logger}
}

// Report opens an incident and one case per reported individual.
func (h *IncidentsHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	var in workflow.ReportIncidentInput
	if !decodeBody(w, r, &in) {
		return
	}
	inc, cases, err := h.workflow.ReportIncident(r.Context(), actor.Name, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"incident": inc,
		"cases":    cases,
	})
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.incidents.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	store.SortByReportedAt(items)
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get returns an incident together with all its cases.
func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	inc, err := h.incidents.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if inc == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	cases, err := h.cases.ListByIncident(r.Context(), inc.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incident": inc,
		"cases":    cases,
	})
}

type updateAttachmentsRequest struct {
	Attachments []store.AttachmentRef `json:"attachments"`
}

// UpdateAttachments replaces the incident attachment set and propagates it to
// every child case's general set.
func (h *IncidentsHandler) UpdateAttachments(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	id := urlParam(r, "id")
	var in updateAttachmentsRequest
	if !decodeBody(w, r, &in) {
		return
	}
	inc, err := h.workflow.SyncIncidentAttachments(r.Context(), actor.Name, id, in.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}
