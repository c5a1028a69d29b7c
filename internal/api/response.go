package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tmail/internal/biz"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError 把业务错误映射为 HTTP 状态码，错误体只有 error 字段
func writeError(w http.ResponseWriter, err error) {
	status, message := http.StatusInternalServerError, "internal server error"

	switch {
	case errors.Is(err, biz.ErrMissingState),
		errors.Is(err, biz.ErrMissingCode),
		errors.Is(err, biz.ErrMissingEmail),
		errors.Is(err, biz.ErrInvalidState):
		status, message = http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, biz.ErrUnauthorized):
		status, message = http.StatusUnauthorized, biz.ErrUnauthorized.Error()
	case errors.Is(err, biz.ErrForbidden):
		status, message = http.StatusForbidden, biz.ErrForbidden.Error()
	case errors.Is(err, biz.ErrEnvelopeNotFound):
		status, message = http.StatusNotFound, biz.ErrEnvelopeNotFound.Error()
	case errors.Is(err, biz.ErrProvider):
		status, message = http.StatusBadGateway, "failed to get user info"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

// rootMessage returns the innermost error text, so wrapped sentinels
// still produce their canonical message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
