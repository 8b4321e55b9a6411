package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/tenantdesk/internal/apperr"
	"github.com/starford/tenantdesk/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a service error onto a status code and JSON body.
func writeError(w http.ResponseWriter, op string, err error) {
	var rpcErr *storage.RPCError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.As(err, &rpcErr):
		status := http.StatusBadGateway
		if rpcErr.Code == "P0002" {
			status = http.StatusNotFound
		}
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{
			Error:   rpcErr.Message,
			Code:    rpcErr.Code,
			Details: rpcErr.Details,
			Hint:    rpcErr.Hint,
		})
	case errors.Is(err, apperr.ErrUpstream):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
