package handler

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/db"
)

type HealthHandler struct {
	db     *sqlx.DB
	driver string
}

func NewHealthHandler(database *sqlx.DB, driver string) *HealthHandler {
	return &HealthHandler{db: database, driver: driver}
}

type healthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	version, err := db.Version(r.Context(), h.db.DB, h.driver)
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", SchemaVersion: version})
}
