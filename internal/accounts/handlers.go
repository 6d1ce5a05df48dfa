package accounts

import (
	"encoding/json"
	"net/http"

	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/pkg/models"
	"go.uber.org/zap"
)

// maxSettingsBytes caps a settings update body.
const maxSettingsBytes = 4 << 10

// Handler serves user settings.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates an accounts HTTP handler.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the settings endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/{user_id}/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /api/users/{user_id}/settings", h.handlePutSettings)
}

// settingsRequest uses a pointer so a missing radius is distinguishable
// from zero.
type settingsRequest struct {
	GeoFenceRadius *float64 `json:"geo_fence_radius"`
}

// handleGetSettings returns a user's settings.
//
//	@Summary		Get settings
//	@Tags			users
//	@Produce		json
//	@Param			user_id path string true "User ID"
//	@Success		200 {object} models.Settings
//	@Failure		404 {object} models.APIProblem
//	@Router			/users/{user_id}/settings [get]
func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	settings, err := h.store.GetSettings(r.Context(), userID)
	if err != nil {
		h.logger.Debug("get settings failed", zap.String("user_id", userID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, settings)
}

// handlePutSettings updates a user's settings.
//
//	@Summary		Update settings
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			user_id path string true "User ID"
//	@Param			request body settingsRequest true "New settings"
//	@Success		200 {object} models.Ack
//	@Failure		400 {object} models.APIProblem
//	@Failure		404 {object} models.APIProblem
//	@Router			/users/{user_id}/settings [put]
func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	var req settingsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if req.GeoFenceRadius == nil {
		server.WriteError(w, r, models.Invalid("geo_fence_radius", "is required"))
		return
	}
	if err := h.store.SetSettings(r.Context(), userID, *req.GeoFenceRadius); err != nil {
		h.logger.Debug("update settings failed", zap.String("user_id", userID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, models.Ack{Success: true})
}
