package telemetry

import (
	"context"
	"net/http"
	"strconv"

	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/pkg/models"
	"go.uber.org/zap"
)

// AlertResolver resolves an alert and notifies integrations. The relay
// engine satisfies it.
type AlertResolver interface {
	ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error)
}

// Handler serves the read side of the event store plus alert resolution.
type Handler struct {
	store    *Store
	resolver AlertResolver
	logger   *zap.Logger
}

// NewHandler creates a telemetry HTTP handler.
func NewHandler(store *Store, resolver AlertResolver, logger *zap.Logger) *Handler {
	return &Handler{store: store, resolver: resolver, logger: logger}
}

// RegisterRoutes mounts the telemetry endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/alerts/{device_id}", h.handleListAlerts)
	mux.HandleFunc("PUT /api/alerts/{alert_id}/resolve", h.handleResolveAlert)
	mux.HandleFunc("GET /api/locations/{device_id}", h.handleListLocations)
}

// handleListAlerts returns a device's alerts.
//
//	@Summary		Device alerts
//	@Description	Returns every alert raised by the device, most recent first.
//	@Tags			alerts
//	@Produce		json
//	@Param			device_id path string true "Device ID"
//	@Success		200 {array} models.Alert
//	@Failure		500 {object} models.APIProblem
//	@Router			/alerts/{device_id} [get]
func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	alerts, err := h.store.ListAlerts(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("failed to list alerts", zap.String("device_id", deviceID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, alerts)
}

// handleResolveAlert marks an alert resolved.
//
//	@Summary		Resolve alert
//	@Tags			alerts
//	@Produce		json
//	@Param			alert_id path string true "Alert ID"
//	@Success		200 {object} models.Ack
//	@Failure		404 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/alerts/{alert_id}/resolve [put]
func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("alert_id")
	if _, err := h.resolver.ResolveAlert(r.Context(), alertID); err != nil {
		h.logger.Warn("failed to resolve alert", zap.String("alert_id", alertID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, models.Ack{Success: true})
}

// handleListLocations returns recent location samples for a device.
//
//	@Summary		Device locations
//	@Tags			telemetry
//	@Produce		json
//	@Param			device_id path string true "Device ID"
//	@Param			limit query int false "Max samples (default 100, max 1000)"
//	@Success		200 {array} models.LocationSample
//	@Failure		500 {object} models.APIProblem
//	@Router			/locations/{device_id} [get]
func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	samples, err := h.store.ListLocations(r.Context(), deviceID, parseLimit(r, DefaultLocationLimit))
	if err != nil {
		h.logger.Error("failed to list locations", zap.String("device_id", deviceID), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, samples)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return min(n, MaxLocationLimit)
		}
	}
	return defaultLimit
}
