package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/ctxkeys"
	"github.com/templui/habits/internal/repository"
	"github.com/templui/habits/internal/service"
)

// RestHandler serves table access under /rest/v1/{table}.
type RestHandler struct {
	dataService *service.DataService
}

func NewRestHandler(dataService *service.DataService) *RestHandler {
	return &RestHandler{dataService: dataService}
}

func (h *RestHandler) Select(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	rows, err := h.dataService.Select(r.Context(), ctxkeys.UserID(r.Context()), q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

// Insert accepts one object or an array of objects. With
// "Prefer: return=representation" the stored rows are echoed back.
func (h *RestHandler) Insert(w http.ResponseWriter, r *http.Request) {
	rows, err := decodeRows(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	stored, err := h.dataService.Insert(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("table"), rows)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if wantsRepresentation(r) {
		WriteJSON(w, http.StatusCreated, stored)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *RestHandler) Update(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var values repository.Row
	if err := decodeBody(w, r, &values); err != nil {
		WriteError(w, r, err)
		return
	}

	_, err = h.dataService.Update(r.Context(), ctxkeys.UserID(r.Context()), q, values)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	_, err = h.dataService.Delete(r.Context(), ctxkeys.UserID(r.Context()), q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseQuery(r *http.Request) (backend.Query, error) {
	values := r.URL.Query()
	// apikey may travel as a query parameter; it is not a filter.
	values.Del("apikey")

	q, err := backend.ParseQuery(r.PathValue("table"), values)
	if err != nil {
		return backend.Query{}, backend.NewError(http.StatusBadRequest, backend.CodeBadQuery, err.Error())
	}
	return q, nil
}

func decodeRows(w http.ResponseWriter, r *http.Request) ([]repository.Row, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, backend.NewError(http.StatusRequestEntityTooLarge, backend.CodeBadQuery, err.Error())
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		data = append(append([]byte{'['}, data...), ']')
	}

	var rows []repository.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, backend.NewError(http.StatusBadRequest, backend.CodeBadQuery, "invalid JSON body: "+err.Error())
	}
	return rows, nil
}

func wantsRepresentation(r *http.Request) bool {
	for _, pref := range strings.Split(r.Header.Get("Prefer"), ",") {
		if strings.TrimSpace(pref) == "return=representation" {
			return true
		}
	}
	return false
}
