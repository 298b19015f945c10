package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/anomaly"
	"github.com/smukkama/tourist-safety/internal/database"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/realtime"
	"github.com/smukkama/tourist-safety/internal/sos"
	"github.com/smukkama/tourist-safety/internal/tracking"
)

// statusWindow is how far back the anomaly status looks
const statusWindow = 24 * time.Hour

const defaultHistoryLimit = 50

// Tracker handles location reports
type Tracker interface {
	UpdateLocation(ctx context.Context, id tracking.Identity, loc models.Point) (*tracking.Report, error)
	Analyze(ctx context.Context, id tracking.Identity, loc models.Point) (*tracking.Report, error)
}

// Alerts is the SOS lifecycle
type Alerts interface {
	Create(ctx context.Context, req sos.CreateRequest) (*sos.Alert, error)
	Get(ctx context.Context, id string) (*sos.Alert, error)
	ListActive(ctx context.Context) ([]*sos.Alert, error)
	History(ctx context.Context, userID string, limit int) ([]*sos.Alert, error)
	UpdateStatus(ctx context.Context, id string, u sos.StatusUpdate) (*sos.Alert, error)
	Cancel(ctx context.Context, id, userID, reason string) (*sos.Alert, error)
}

// Archive reads archived anomalies
type Archive interface {
	ListAnomalyAlerts(ctx context.Context, f database.AnomalyFilter) (*database.AnomalyPage, error)
	RecentAnomalyAlerts(ctx context.Context, userID string, since time.Time) ([]models.AnomalyRecord, error)
}

// Profiles reads user records
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// HealthChecker probes the ML endpoint
type HealthChecker interface {
	HealthCheck(ctx context.Context) anomaly.HealthStatus
}

// ConnectionStats reports websocket usage
type ConnectionStats interface {
	Stats() realtime.RegistryStats
}

// Handler serves the REST API
type Handler struct {
	tracker     Tracker
	alerts      Alerts
	archive     Archive
	profiles    Profiles
	health      HealthChecker
	connections ConnectionStats
	logger      *zap.Logger
	startedAt   time.Time
	now         func() time.Time
}

// Deps are the collaborators a Handler needs. Health and Connections may be
// nil.
type Deps struct {
	Tracker     Tracker
	Alerts      Alerts
	Archive     Archive
	Profiles    Profiles
	Health      HealthChecker
	Connections ConnectionStats
	Logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		tracker:     d.Tracker,
		alerts:      d.Alerts,
		archive:     d.Archive,
		profiles:    d.Profiles,
		health:      d.Health,
		connections: d.Connections,
		logger:      d.Logger,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message, code := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeFailure(w, status, message, code)
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (req locationRequest) point() (models.Point, bool) {
	if req.Latitude == nil || req.Longitude == nil {
		return models.Point{}, false
	}
	return models.Point{Latitude: *req.Latitude, Longitude: *req.Longitude, Address: req.Address}, true
}

func (h *Handler) readLocation(w http.ResponseWriter, r *http.Request) (models.Point, bool) {
	var req locationRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body", CodeValidation)
		return models.Point{}, false
	}
	loc, ok := req.point()
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Location coordinates are required", CodeMissingCoords)
		return models.Point{}, false
	}
	return loc, true
}

type anomalySummary struct {
	Checked      bool              `json:"checked"`
	HasAnomalies bool              `json:"hasAnomalies"`
	RiskLevel    anomaly.RiskLevel `json:"riskLevel"`
	AnomalyCount int               `json:"anomalyCount"`
}

// handleTrack handles POST /api/location/track
func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.readLocation(w, r)
	if !ok {
		return
	}

	report, err := h.tracker.UpdateLocation(r.Context(), identityFrom(r.Context()), loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data := map[string]interface{}{
		"location": report.Location,
		"anomalyDetection": anomalySummary{
			Checked:      true,
			HasAnomalies: report.Result.HasAnomalies,
			RiskLevel:    report.Result.RiskLevel,
			AnomalyCount: report.Result.TotalAnomalies,
		},
	}
	if report.AutoSOSID != "" {
		data["autoSosId"] = report.AutoSOSID
	}
	writeSuccess(w, http.StatusOK, "Location updated successfully", data)
}

// handleCurrentLocation handles GET /api/location/current
func (h *Handler) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	profile, err := h.profiles.GetProfile(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if profile == nil {
		writeFailure(w, http.StatusNotFound, "User not found", CodeUserNotFound)
		return
	}
	if profile.LastKnownLocation == nil {
		writeFailure(w, http.StatusNotFound, "No location data available", CodeNoLocation)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"location":  profile.LastKnownLocation,
		"updatedAt": profile.LastLocationAt,
	})
}

// handleDetect handles POST /api/anomaly/detect
func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.readLocation(w, r)
	if !ok {
		return
	}

	report, err := h.tracker.Analyze(r.Context(), identityFrom(r.Context()), loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Anomaly detection completed", map[string]interface{}{
		"hasAnomalies":    report.Result.HasAnomalies,
		"riskLevel":       report.Result.RiskLevel,
		"anomalies":       report.Result.Anomalies,
		"totalAnomalies":  report.Result.TotalAnomalies,
		"featuresUsed":    report.Result.FeaturesUsed,
		"recommendations": report.Recommendations,
	})
}

// handleAnomalyHistory handles GET /api/anomaly/history
func (h *Handler) handleAnomalyHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	severity := models.Severity(strings.ToUpper(q.Get("severity")))
	if severity != "" && !severity.Valid() {
		writeFailure(w, http.StatusBadRequest, "Invalid severity", CodeInvalidSeverity)
		return
	}

	page, err := h.archive.ListAnomalyAlerts(r.Context(), database.AnomalyFilter{
		UserID:   identityFrom(r.Context()).UserID,
		Severity: severity,
		Limit:    parseInt(q.Get("limit"), database.DefaultPageSize),
		Page:     parseInt(q.Get("page"), 1),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", page)
}

// handleAnomalyStatus handles GET /api/anomaly/status
func (h *Handler) handleAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	since := h.now().Add(-statusWindow)
	records, err := h.archive.RecentAnomalyAlerts(r.Context(), identityFrom(r.Context()).UserID, since)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", anomaly.SummarizeRecent(records))
}

type createSOSRequest struct {
	locationRequest
	AlertType   sos.AlertType   `json:"alertType"`
	Severity    models.Severity `json:"severity"`
	Description string          `json:"description"`
	DeviceInfo  *sos.DeviceInfo `json:"deviceInfo"`
}

// handleCreateSOS handles POST /api/sos/alert
func (h *Handler) handleCreateSOS(w http.ResponseWriter, r *http.Request) {
	var req createSOSRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body", CodeValidation)
		return
	}
	loc, ok := req.point()
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Location coordinates are required", CodeMissingCoords)
		return
	}

	id := identityFrom(r.Context())
	alert, err := h.alerts.Create(r.Context(), sos.CreateRequest{
		UserID:      id.UserID,
		TouristID:   id.TouristID,
		AlertType:   req.AlertType,
		Severity:    req.Severity,
		Location:    loc,
		Description: req.Description,
		DeviceInfo:  req.DeviceInfo,
		Source:      sos.SourceManual,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "SOS alert created successfully", map[string]interface{}{
		"sosId":         alert.ID,
		"alertType":     alert.AlertType,
		"severity":      alert.Severity,
		"status":        alert.Status,
		"location":      alert.Location,
		"emergencyCode": alert.EmergencyCode,
		"timestamp":     alert.CreatedAt,
		"message":       "Emergency alert activated. Help has been notified.",
	})
}

// handleActiveSOS handles GET /api/sos/active
func (h *Handler) handleActiveSOS(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*sos.Alert{}
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"alerts": alerts})
}

// handleSOSHistory handles GET /api/sos/history
func (h *Handler) handleSOSHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), defaultHistoryLimit)
	alerts, err := h.alerts.History(r.Context(), identityFrom(r.Context()).UserID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*sos.Alert{}
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

// handleGetSOS handles GET /api/sos/{id}
func (h *Handler) handleGetSOS(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", alert)
}

type statusRequest struct {
	Status          sos.Status         `json:"status"`
	AcknowledgedBy  string             `json:"acknowledgedBy"`
	RespondingUnits []string           `json:"respondingUnits"`
	ResolutionNotes string             `json:"resolutionNotes"`
	ResolutionType  sos.ResolutionType `json:"resolutionType"`
	Reason          string             `json:"reason"`
}

// handleUpdateSOSStatus handles PUT /api/sos/{id}/status
func (h *Handler) handleUpdateSOSStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body", CodeValidation)
		return
	}
	if !req.Status.Valid() {
		writeFailure(w, http.StatusBadRequest, "Invalid status", CodeInvalidStatus)
		return
	}

	caller := identityFrom(r.Context()).UserID
	by := req.AcknowledgedBy
	if by == "" {
		by = caller
	}

	alert, err := h.alerts.UpdateStatus(r.Context(), mux.Vars(r)["id"], sos.StatusUpdate{
		Status:         req.Status,
		By:             by,
		RequestedBy:    caller,
		Units:          req.RespondingUnits,
		Notes:          req.ResolutionNotes,
		ResolutionType: req.ResolutionType,
		Reason:         req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"sosId":      alert.ID,
		"status":     alert.Status,
		"resolvedAt": alert.ResolvedAt,
		"message":    "SOS alert " + strings.ToLower(string(alert.Status)) + " successfully",
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// handleCancelSOS handles DELETE /api/sos/{id}/cancel
func (h *Handler) handleCancelSOS(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body", CodeValidation)
		return
	}

	alert, err := h.alerts.Cancel(r.Context(), mux.Vars(r)["id"], identityFrom(r.Context()).UserID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "SOS alert cancelled", map[string]interface{}{
		"sosId":       alert.ID,
		"status":      alert.Status,
		"cancelledAt": alert.CancelledAt,
	})
}

// handleHealth handles GET /health. An unreachable ML endpoint is reported
// under services but does not change the overall status.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]interface{}{}
	if h.health != nil {
		services["ai"] = h.health.HealthCheck(r.Context())
	}
	if h.connections != nil {
		services["websocket"] = h.connections.Stats()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"timestamp": h.now().UTC(),
		"uptime":    h.now().Sub(h.startedAt).Seconds(),
		"version":   "1.0.0",
		"services":  services,
	})
}
