package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tcron/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

// writeRepoError maps a repository error onto a status code. action completes
// "failed to ..." in the message of unexpected errors.
func (s *Server) writeRepoError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrTaskRunning):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, core.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, "not_implemented", err.Error())
	case errors.Is(err, core.ErrMalformedRecord):
		s.logger.Error(action, "err", err)
		writeError(w, http.StatusInternalServerError, "malformed_record", err.Error())
	case errors.Is(err, core.ErrExecution):
		s.logger.Warn(action, "err", err)
		writeError(w, http.StatusInternalServerError, "execution_failed", err.Error())
	default:
		s.logger.Error(action, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeJSON reads the request body into v and answers 400 when it is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolParam(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}
