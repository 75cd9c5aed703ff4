package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/verbly-ai/verbly/pkg/realtime"
)

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func statusForError(err *realtime.Error) int {
	switch err.Type {
	case realtime.ErrAuthentication:
		return http.StatusUnauthorized
	case realtime.ErrCapacityExceeded:
		return http.StatusTooManyRequests
	case realtime.ErrResourceNotFound:
		return http.StatusNotFound
	case realtime.ErrMalformedClientFrame:
		return http.StatusBadRequest
	case realtime.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case realtime.ErrUpstreamConnectFailure, realtime.ErrUpstreamDisconnect:
		return http.StatusBadGateway
	case realtime.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorEnvelope struct {
	Type      string          `json:"type"`
	Error     *realtime.Error `json:"error"`
	RequestID string          `json:"request_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, err *realtime.Error, requestID string) {
	writeJSONErrorWithStatus(w, statusForError(err), err, requestID)
}

func writeJSONErrorWithStatus(w http.ResponseWriter, status int, err *realtime.Error, requestID string) {
	if err == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Type:      "error",
		Error:     err,
		RequestID: requestID,
	})
}

func normalizeError(err error) *realtime.Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*realtime.Error); ok {
		return apiErr
	}
	return realtime.NewInternalError(err.Error())
}
