package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
	"github.com/akagifreeez/gemini-key-pool/internal/services"
)

const (
	defaultLogPage  = 1
	defaultLogLimit = 50
)

// AdminHandler serves the JSON administration API used by the dashboard
type AdminHandler struct {
	registry *services.KeyRegistry
	stats    *services.StatsAggregator
	errorLog *services.ErrorLog
}

func NewAdminHandler(registry *services.KeyRegistry, stats *services.StatsAggregator, errorLog *services.ErrorLog) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		stats:    stats,
		errorLog: errorLog,
	}
}

type addKeyRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (r *addKeyRequest) validate() error {
	r.Key = strings.TrimSpace(r.Key)
	r.Name = strings.TrimSpace(r.Name)
	if r.Key == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	return nil
}

type addKeyResponse struct {
	Success bool             `json:"success"`
	Key     models.KeyRecord `json:"key"`
}

type deleteKeyRequest struct {
	Key string `json:"key"`
}

func (r *deleteKeyRequest) validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	return nil
}

type keyStatusRequest struct {
	Key     string `json:"key"`
	Enabled *bool  `json:"enabled"`
}

func (r *keyStatusRequest) validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	if r.Enabled == nil {
		return &ValidationError{Field: "enabled", Message: "is required"}
	}
	return nil
}

// ListKeys returns every pooled key in insertion order
// GET /admin/keys
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// AddKey pools a new key
// POST /admin/keys {key, name?}
func (h *AdminHandler) AddKey(w http.ResponseWriter, r *http.Request) {
	var input addKeyRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := input.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.registry.Add(input.Key, input.Name)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateKey) {
			writeError(w, http.StatusConflict, "Key already exists")
			return
		}
		log.Error().Err(err).Msg("Failed to add key")
		writeError(w, http.StatusInternalServerError, "Failed to add key")
		return
	}

	writeJSON(w, http.StatusOK, addKeyResponse{Success: true, Key: rec})
}

// DeleteKey removes a key. Unknown keys are a no-op.
// DELETE /admin/keys {key}
func (h *AdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var input deleteKeyRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := input.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.registry.Remove(strings.TrimSpace(input.Key)) {
		log.Debug().Str("key", models.MaskKey(input.Key)).Msg("Delete of unknown key ignored")
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// SetKeyStatus enables or disables a key. Unknown keys are a no-op.
// PUT /admin/key-status {key, enabled}
func (h *AdminHandler) SetKeyStatus(w http.ResponseWriter, r *http.Request) {
	var input keyStatusRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := input.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.registry.SetEnabled(strings.TrimSpace(input.Key), *input.Enabled) {
		log.Debug().Str("key", models.MaskKey(input.Key)).Msg("Status change of unknown key ignored")
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetStats returns the global counters
// GET /admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// ResetStats zeroes global and per-key counters
// POST /admin/reset-stats
func (h *AdminHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.stats.Reset()
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetLogs returns one page of failures, newest first
// GET /admin/logs?page=1&limit=50
func (h *AdminHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	page := parsePositiveInt(r.URL.Query().Get("page"), defaultLogPage)
	limit := parsePositiveInt(r.URL.Query().Get("limit"), defaultLogLimit)

	logs, total := h.errorLog.Page(page, limit)
	writeJSON(w, http.StatusOK, models.LogPage{
		Logs:  logs,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// ClearLogs empties the error log
// POST /admin/clear-logs
func (h *AdminHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.errorLog.Clear()
	log.Info().Msg("Error log cleared")
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func parsePositiveInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
