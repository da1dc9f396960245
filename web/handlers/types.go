package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/scrypster/reverie/pkg/types"
)

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent, nothing left to do but log.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondSuccess wraps data in the success envelope.
func respondSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	respondJSON(w, statusCode, types.SuccessResponse(data))
}

// respondError wraps a message in the error envelope. Raw backend
// error text stays out of responses; callers pass a short message.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, types.ErrorResponse(message))
}

// parseInt parses an integer query parameter, returning defaultValue
// when absent or malformed.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// parseTime parses an RFC 3339 query parameter; nil when absent or
// malformed.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
