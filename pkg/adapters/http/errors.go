package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Messages that may reach clients as-is. Everything else is replaced.
const (
	MsgRouteNotFound     = "Route not found"
	MsgInvalidBody       = "Invalid request body"
	MsgMissingFields     = "Missing required fields"
	MsgInvalidInput      = "Invalid agent input"
	MsgInvocationFailed  = "Agent invocation failed"
	MsgBadRequest        = "Bad request"
	MsgNotFound          = "Not found"
	MsgMethodNotAllowed  = "Method not allowed"
	MsgInternal          = "Internal server error"
	msgGenericClient     = "An error occurred"
	msgStreamUnsupported = "Streaming not supported"
)

var safeMessages = map[string]bool{
	MsgRouteNotFound:    true,
	MsgInvalidBody:      true,
	MsgMissingFields:    true,
	MsgInvalidInput:     true,
	MsgInvocationFailed: true,
	MsgBadRequest:       true,
	MsgNotFound:         true,
	MsgMethodNotAllowed: true,
}

type errorBody struct {
	Error     string    `json:"error"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// sanitize keeps allow-listed 4xx messages and hides everything else.
func sanitize(message string, status int) string {
	switch {
	case status >= 500:
		return MsgInternal
	case status >= 400 && safeMessages[message]:
		return message
	}
	return msgGenericClient
}

// writeError logs the full cause and sends the sanitized message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string, cause error) {
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"message", message,
		"error", cause,
	)
	writeJSON(w, status, errorBody{
		Error:     sanitize(message, status),
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoverer turns handler panics into a sanitized 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.ErrorContext(r.Context(), "handler panicked", "path", r.URL.Path, "panic", p)
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Error:     MsgInternal,
					Status:    http.StatusInternalServerError,
					Timestamp: time.Now().UTC(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
