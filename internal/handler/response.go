package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/rs/zerolog/log"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// Error writes an error JSON response, using AppError status codes when available.
// The body is {"error": message, "code": reason}.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("request failed")
		}
		JSON(w, appErr.Code, appErr)
		return
	}
	log.Error().Err(err).Msg("unhandled error")
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error", "code": "internal"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}
