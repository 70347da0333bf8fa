// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package questserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/theuzao/grindsync/internal/auth"
)

// Handler exposes the sync service over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an HTTP handler for the service.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the authenticated sync router.
func (h *Handler) Routes(authn *JWTAuth) http.Handler {
	r := chi.NewRouter()
	r.Use(authn.Middleware)
	r.Get("/sync/{table}", h.handlePull)
	r.Put("/sync/{table}/{id}", h.handleUpsert)
	r.Delete("/sync/{table}/{id}", h.handleDelete)
	return r
}

func (h *Handler) handlePull(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	table := chi.URLParam(r, "table")
	if !h.service.RegisteredTable(table) {
		h.writeError(w, http.StatusBadRequest, ReasonUnregisteredTable, "table not registered for sync: "+table)
		return
	}

	var after time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, ReasonBadRequest, "invalid after parameter")
			return
		}
		after = parsed
	}
	limit := h.service.MaxPullLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, ReasonBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	records, err := h.service.PullSince(r.Context(), userID, table, after, limit)
	if err != nil {
		h.logger.Error("pull failed", "user", userID, "table", table, "error", err)
		h.writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to read records")
		return
	}
	h.writeJSON(w, http.StatusOK, PullResponse{Records: records})
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	if !h.service.RegisteredTable(table) {
		h.writeError(w, http.StatusBadRequest, ReasonUnregisteredTable, "table not registered for sync: "+table)
		return
	}
	if id == "" {
		h.writeError(w, http.StatusBadRequest, ReasonBadRequest, "record id is required")
		return
	}

	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		h.writeError(w, http.StatusBadRequest, ReasonBadPayload, "body must be a JSON object")
		return
	}
	// JSON null decodes into a nil map without error.
	if record == nil {
		h.writeError(w, http.StatusBadRequest, ReasonBadPayload, "body must be a JSON object")
		return
	}
	if bodyID, ok := record["id"].(string); ok && bodyID != "" && bodyID != id {
		h.writeError(w, http.StatusBadRequest, ReasonBadPayload, "payload id does not match URL")
		return
	}

	updatedAt, err := h.service.Upsert(r.Context(), userID, table, id, record)
	if err != nil {
		h.logger.Error("upsert failed", "user", userID, "table", table, "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to write record")
		return
	}
	h.writeJSON(w, http.StatusOK, UpsertResponse{UpdatedAt: updatedAt})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	if !h.service.RegisteredTable(table) {
		h.writeError(w, http.StatusBadRequest, ReasonUnregisteredTable, "table not registered for sync: "+table)
		return
	}

	found, err := h.service.Delete(r.Context(), userID, table, id)
	if err != nil {
		h.logger.Error("delete failed", "user", userID, "table", table, "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to delete record")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, ReasonBadRequest, "record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, reason, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: reason, Message: message})
}

func parseTimeParam(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
