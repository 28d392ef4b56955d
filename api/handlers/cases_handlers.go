package handlers

import (
	"net/http"
	"strings"

	"kestrel-dcr/core/rbac"
	"kestrel-dcr/core/store"
	"kestrel-dcr/core/utils"
	"kestrel-dcr/core/workflow"
)

type CasesHandler struct {
	workflow *workflow.Service
	cases    *store.CasesRepo
	logger   *utils.Logger
}

func NewCasesHandler(wf *workflow.Service, cases *store.CasesRepo, logger *utils.Logger) *CasesHandler {
	return &CasesHandler{workflow: wf, cases: cases, logger: logger}
}

func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CaseFilter{
		IncidentID: strings.TrimSpace(q.Get("incident")),
		Status:     store.CaseStatus(strings.TrimSpace(q.Get("status"))),
		Reported:   strings.TrimSpace(q.Get("reported")),
		Squad:      strings.TrimSpace(q.Get("squad")),
		Campus:     strings.TrimSpace(q.Get("campus")),
	}
	items, err := h.cases.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *CasesHandler) SubmitInvestigation(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	var in workflow.InvestigationInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.workflow.SubmitInvestigation(r.Context(), actor.Name, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *CasesHandler) RecordVerdict(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	var in workflow.VerdictInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.workflow.RecordVerdict(r.Context(), actor.Name, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *CasesHandler) SubmitAppeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	var in workflow.AppealInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.workflow.SubmitAppeal(r.Context(), actor.Name, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *CasesHandler) ResolveAppeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	var in workflow.ResolveAppealInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.workflow.ResolveAppeal(r.Context(), actor.Name, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *CasesHandler) RequestMoreInvestigation(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.FromContext(r.Context())
	c, err := h.workflow.RequestMoreInvestigation(r.Context(), actor.Name, urlParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}
