package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"kestrel-dcr/core/lifecycle"
	"kestrel-dcr/core/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine and store failures to status codes. Business
// rejections carry their kind, code, and reason so the caller can render a
// precise message.
func writeError(w http.ResponseWriter, err error) {
	if e, ok := lifecycle.AsError(err); ok {
		status := http.StatusInternalServerError
		switch e.Kind {
		case lifecycle.KindInvalidTransition, lifecycle.KindIneligibleAppeal:
			status = http.StatusConflict
		case lifecycle.KindValidation:
			status = http.StatusBadRequest
		case lifecycle.KindNotFound:
			status = http.StatusNotFound
		case lifecycle.KindStoreUnavailable:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"error": map[string]string{
				"kind":   string(e.Kind),
				"code":   e.Code,
				"reason": e.Reason,
			},
		})
		return
	}
	if errors.Is(err, store.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]string{
				"kind":   "conflict",
				"reason": "record changed concurrently, re-fetch and retry",
			},
		})
		return
	}
	if errors.Is(err, store.ErrStoreUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]string{
				"kind":   string(lifecycle.KindStoreUnavailable),
				"reason": "record store unavailable, retry the operation",
			},
		})
		return
	}
	http.Error(w, "server error", http.StatusInternalServerError)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{
				"kind":   string(lifecycle.KindValidation),
				"reason": "invalid json body",
			},
		})
		return false
	}
	return true
}
