// Package handler implements the backend's HTTP endpoints.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/models"
	"github.com/clipdeck/clipdeck/internal/server/response"
	"github.com/clipdeck/clipdeck/internal/server/storage"
)

// UpsertRequest is the wire DTO of a create/update submission.
type UpsertRequest struct {
	ID            string        `json:"id"`
	BaseUpdatedAt time.Time     `json:"base_updated_at"`
	Fields        models.Fields `json:"fields"`
}

type RecordsHandler struct {
	store     *storage.Memory
	validator *validator.Validate
	log       logging.Logger
}

func NewRecordsHandler(store *storage.Memory, log logging.Logger) *RecordsHandler {
	return &RecordsHandler{store: store, validator: validator.New(), log: log}
}

func (h *RecordsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Var(string(req.Fields.Kind), "required,oneof=link note category"); err != nil {
		response.BadRequest(w, "invalid record kind")
		return
	}
	if req.Fields.UpdatedAt.IsZero() {
		response.BadRequest(w, "missing updated_at")
		return
	}

	rec, conflict := h.store.Upsert(id, req.BaseUpdatedAt, req.Fields)
	if conflict != nil {
		h.log.Info(r.Context(), "upsert precondition failed", "record_id", id)
		response.Conflict(w, "conflict", conflict)
		return
	}

	response.Success(w, rec)
}

func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var base time.Time
	if raw := r.URL.Query().Get("base"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(w, "invalid base timestamp")
			return
		}
		base = time.Unix(0, n).UTC()
	}

	if conflict := h.store.Delete(id, base); conflict != nil {
		h.log.Info(r.Context(), "delete precondition failed", "record_id", id)
		response.Conflict(w, "conflict", conflict)
		return
	}

	response.Success(w, nil)
}

func (h *RecordsHandler) Ping(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"})
}
