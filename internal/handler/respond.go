package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/habits/internal/backend"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// authErrorBody is the error shape of the /auth/v1 endpoints.
type authErrorBody struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Msg       string `json:"msg"`
}

// WriteError renders err in the shape clients expect for the request path:
// the auth shape under /auth/v1, the table shape everywhere else.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var be *backend.Error
	if !errors.As(err, &be) {
		slog.Error("unhandled error", "error", err, "path", r.URL.Path)
		be = backend.NewError(http.StatusInternalServerError, "", "internal error")
	}

	if strings.HasPrefix(r.URL.Path, "/auth/") {
		WriteJSON(w, be.Status, authErrorBody{Code: be.Status, ErrorCode: be.Code, Msg: be.Message})
		return
	}
	WriteJSON(w, be.Status, be)
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		return backend.NewError(http.StatusBadRequest, backend.CodeBadQuery, "invalid JSON body: "+err.Error())
	}
	return nil
}
