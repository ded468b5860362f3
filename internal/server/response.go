package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/stratagem/internal/engine"
	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/lock"
	"github.com/roach88/stratagem/internal/store"
)

// Response is the envelope of every API reply.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed request.
type ResponseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes for failures that are not strategy runtime errors.
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeNotFound    = "NOT_FOUND"
	CodeRateLimited = "RATE_LIMITED"
	CodeLocked      = "LOCKED"
	CodeFailed      = "TX_FAILED"
	CodeInternal    = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Status: "error",
		Error:  &ResponseError{Code: code, Message: message},
	})
}

// errorStatus maps an error to an HTTP status and an error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, host.ErrUnknownContract):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, lock.ErrLockAcquire):
		return http.StatusConflict, CodeLocked
	case errors.Is(err, host.ErrChainClosed):
		return http.StatusServiceUnavailable, CodeInternal
	}

	switch code := engine.CodeOf(err); code {
	case "":
		return http.StatusUnprocessableEntity, CodeFailed
	case engine.ErrCodeUnauthorized:
		return http.StatusForbidden, string(code)
	case engine.ErrCodeGraphInvalid:
		return http.StatusBadRequest, string(code)
	default:
		return http.StatusUnprocessableEntity, string(code)
	}
}
