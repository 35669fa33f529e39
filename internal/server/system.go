package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/addongate/addongate/internal/model"
	"github.com/addongate/addongate/internal/service"
)

// SettingEmergencyDisable is the settings key persisting the kill switch so
// it survives restarts.
const SettingEmergencyDisable = "emergency_disable"

// handleListKeys returns all key records, metadata only. Hashes and raw key
// material never appear here.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Keys.List(r.Context())
	if err != nil {
		s.deps.Logger.Error("list keys", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

type generateKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleGenerateKey creates a new API key. The raw key appears in this
// response and nowhere else.
func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		req.Name = "unnamed"
	}

	plaintext, record, err := s.deps.Keys.Generate(r.Context(), req.Name, req.Description)
	if err != nil {
		s.deps.Logger.Error("generate key", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate key")
		return
	}

	s.deps.Logger.Info("api key generated", "id", record.ID, "name", record.Name)
	writeJSON(w, http.StatusCreated, model.KeyCreatedResponse{
		Key:     plaintext,
		Record:  record,
		Warning: "Save this key securely. It won't be shown again.",
	})
}

type rotateKeyRequest struct {
	ID         string `json:"id"`
	GraceHours int    `json:"grace_hours"`
}

// handleRotateKey rotates a key: the old record enters its grace window (or
// is revoked outright at zero hours) and a fresh active key is returned.
func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	plaintext, record, err := s.deps.Keys.Rotate(r.Context(), req.ID, req.GraceHours)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		s.deps.Logger.Error("rotate key", "error", err, "id", req.ID)
		writeError(w, http.StatusInternalServerError, "Failed to rotate key")
		return
	}

	s.deps.Logger.Warn("api key rotated", "old_id", req.ID, "new_id", record.ID, "grace_hours", req.GraceHours)
	writeJSON(w, http.StatusOK, model.KeyCreatedResponse{
		Key:     plaintext,
		Record:  record,
		Warning: "Save this key securely. The old key stops working when its grace window ends.",
	})
}

// handleRevokeKey revokes a key unconditionally. Idempotent.
func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.deps.Keys.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		s.deps.Logger.Error("revoke key", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Failed to revoke key")
		return
	}

	s.deps.Logger.Warn("api key revoked", "id", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Key revoked",
	})
}

// handleAudit returns the most recent gating decisions in chronological
// order. The limit query parameter caps the count.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries := s.deps.Audit.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// handleGetEmergency reports the kill-switch state.
func (s *Server) handleGetEmergency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"disabled": s.deps.Emergency.Disabled(),
	})
}

type emergencyRequest struct {
	Disabled bool `json:"disabled"`
}

// handleSetEmergency toggles the kill switch. The new state takes effect on
// the very next request and is persisted so it survives restarts.
func (s *Server) handleSetEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// Persist first: if the write fails the switch stays in its previous
	// state and the error response matches what is actually in effect.
	if err := s.deps.Store.SetSetting(r.Context(), SettingEmergencyDisable, strconv.FormatBool(req.Disabled)); err != nil {
		s.deps.Logger.Error("persist emergency flag", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to persist emergency flag")
		return
	}
	s.deps.Emergency.Set(req.Disabled)

	if req.Disabled {
		s.deps.Logger.Error("EMERGENCY DISABLE ACTIVATED - all protected requests blocked")
	} else {
		s.deps.Logger.Warn("emergency disable cleared")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": req.Disabled})
}
