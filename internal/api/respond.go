package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hpnssflw/voicekeeper/internal/analyzer"
	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/generator"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// writeServiceError maps pipeline errors onto HTTP statuses. Exhaustion
// details are logged, never returned to the caller.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	var exhausted *cascade.ExhaustedError
	switch {
	case errors.Is(err, generator.ErrEmptyTopic), errors.Is(err, analyzer.ErrSampleTooShort):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, generator.ErrNoCredential), errors.Is(err, credentials.ErrNotFound):
		httpError(w, http.StatusPreconditionFailed, "missing_credential",
			"no Gemini API key configured; add one with PUT /users/{userID}/keys/gemini")
	case errors.As(err, &exhausted):
		logger.Warn(action+" unavailable", "attempts", len(exhausted.Attempts), "last_error", exhausted.Last)
		httpError(w, http.StatusServiceUnavailable, "unavailable", "generation unavailable, try again")
	default:
		logger.Error(action+" failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%s failed", action)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
