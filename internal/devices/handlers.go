package devices

import (
	"net/http"

	"github.com/HerbHall/guardian/internal/server"
	"go.uber.org/zap"
)

// Handler serves device lookups.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a devices HTTP handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// RegisterRoutes mounts the device endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices/{device_id}", h.handleGetDevice)
}

// handleGetDevice returns a device's last known status.
//
//	@Summary		Get device
//	@Tags			devices
//	@Produce		json
//	@Param			device_id path string true "Device ID"
//	@Success		200 {object} models.Device
//	@Failure		404 {object} models.APIProblem
//	@Router			/devices/{device_id} [get]
func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	d, err := h.registry.Get(r.Context(), deviceID)
	if err != nil {
		h.logger.Debug("device lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, d)
}
