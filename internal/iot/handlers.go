// Package iot exposes the device-facing HTTP ingest endpoints.
package iot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/pkg/models"
	"go.uber.org/zap"
)

// maxBodyBytes caps a device report body.
const maxBodyBytes = 64 << 10

// Ingester accepts device reports. The relay engine satisfies it.
type Ingester interface {
	IngestLocation(ctx context.Context, r models.LocationReport) (*models.LocationSample, error)
	IngestAlert(ctx context.Context, r models.AlertReport) (*models.Alert, error)
	IngestStatus(ctx context.Context, r models.StatusReport) (*models.DeviceStatus, error)
}

// Handler serves POST /api/iot/*.
type Handler struct {
	ingest Ingester
	logger *zap.Logger
}

// NewHandler creates the device ingest handler.
func NewHandler(ingest Ingester, logger *zap.Logger) *Handler {
	return &Handler{ingest: ingest, logger: logger}
}

// RegisterRoutes mounts the ingest endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/iot/location", h.handleLocation)
	mux.HandleFunc("POST /api/iot/alert", h.handleAlert)
	mux.HandleFunc("POST /api/iot/status", h.handleStatus)
}

// handleLocation records a location ping.
//
//	@Summary		Report location
//	@Tags			iot
//	@Accept			json
//	@Produce		json
//	@Param			report body models.LocationReport true "Location ping"
//	@Success		200 {object} models.Ack
//	@Failure		400 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/iot/location [post]
func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	var rep models.LocationReport
	if !decode(w, r, &rep) {
		return
	}
	if _, err := h.ingest.IngestLocation(r.Context(), rep); err != nil {
		h.fail(w, r, "location", rep.DeviceID, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, models.Ack{Success: true})
}

// handleAlert records an emergency alert.
//
//	@Summary		Trigger alert
//	@Tags			iot
//	@Accept			json
//	@Produce		json
//	@Param			report body models.AlertReport true "Alert"
//	@Success		200 {object} models.Ack
//	@Failure		400 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/iot/alert [post]
func (h *Handler) handleAlert(w http.ResponseWriter, r *http.Request) {
	var rep models.AlertReport
	if !decode(w, r, &rep) {
		return
	}
	alert, err := h.ingest.IngestAlert(r.Context(), rep)
	if err != nil {
		h.fail(w, r, "alert", rep.DeviceID, err)
		return
	}
	h.logger.Info("alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("device_id", alert.DeviceID),
		zap.String("type", alert.Kind),
	)
	server.WriteJSON(w, http.StatusOK, models.Ack{Success: true})
}

// handleStatus applies a device heartbeat.
//
//	@Summary		Report status
//	@Tags			iot
//	@Accept			json
//	@Produce		json
//	@Param			report body models.StatusReport true "Heartbeat"
//	@Success		200 {object} models.Ack
//	@Failure		400 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/iot/status [post]
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var rep models.StatusReport
	if !decode(w, r, &rep) {
		return
	}
	if _, err := h.ingest.IngestStatus(r.Context(), rep); err != nil {
		h.fail(w, r, "status", rep.DeviceID, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, models.Ack{Success: true})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, kind, deviceID string, err error) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("device_id", deviceID),
		zap.Error(err),
	}
	if errors.Is(err, models.ErrValidation) {
		h.logger.Debug("rejected device report", fields...)
	} else {
		h.logger.Error("failed to ingest device report", fields...)
	}
	server.WriteError(w, r, err)
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return false
	}
	return true
}
