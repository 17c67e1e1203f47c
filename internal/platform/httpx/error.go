package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const (
	maxCodeLength    = 64
	maxMessageLength = 400
)

// Error is the JSON error envelope every storefront endpoint answers with:
// {"error": code, "message": ..., "status": ..., "request_id": ..., "session_id": ...}.
// Details are merged into the top level of the body.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	Details   map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	code = clip(code, maxCodeLength)
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return Error{
		Code:    code,
		Message: clip(message, maxMessageLength),
		Status:  status,
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// WithDetails returns a copy of e carrying extra body fields. Reserved envelope keys are ignored.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		if reserved(k) {
			continue
		}
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError renders err, filling the request and session ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status <= 0 {
		err.Status = http.StatusInternalServerError
	}
	body := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		body[k] = v
	}
	body["error"] = err.Code
	body["message"] = err.Message
	body["status"] = err.Status

	requestID := err.RequestID
	if requestID == "" && ctx != nil {
		requestID = clip(middleware.GetReqID(ctx), maxCodeLength)
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	if ctx != nil {
		if sessionID := requestctx.SessionID(ctx); sessionID != "" {
			body["session_id"] = sessionID
		}
	}
	WriteJSON(w, err.Status, body)
}

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func reserved(key string) bool {
	switch key {
	case "error", "message", "status", "request_id", "session_id":
		return true
	}
	return false
}

// clip flattens newlines and truncates on a rune boundary.
func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value))
	if len(value) <= limit {
		return value
	}
	value = value[:limit]
	for len(value) > 0 && !utf8.ValidString(value) {
		value = value[:len(value)-1]
	}
	return value
}
