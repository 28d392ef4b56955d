package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"kestrel-dcr/core/store"
)

type LogsHandler struct {
	audits store.AuditStore
}

func NewLogsHandler(audits store.AuditStore) *LogsHandler {
	return &LogsHandler{audits: audits}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.audits == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []store.AuditEntry{}})
		return
	}
	limit := 200
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.audits.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
