package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires every route. ws and metrics may be nil.
func NewRouter(h *Handler, ws http.Handler, metrics http.Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware(logger))
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", h.handleHealth).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}
	if ws != nil {
		router.Handle("/ws", ws).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(requireIdentity)

	api.HandleFunc("/location/track", h.handleTrack).Methods("POST")
	api.HandleFunc("/location/current", h.handleCurrentLocation).Methods("GET")

	api.HandleFunc("/anomaly/detect", h.handleDetect).Methods("POST")
	api.HandleFunc("/anomaly/history", h.handleAnomalyHistory).Methods("GET")
	api.HandleFunc("/anomaly/status", h.handleAnomalyStatus).Methods("GET")

	// Fixed paths first so they are not taken for an alert id
	api.HandleFunc("/sos/alert", h.handleCreateSOS).Methods("POST")
	api.HandleFunc("/sos/active", h.handleActiveSOS).Methods("GET")
	api.HandleFunc("/sos/history", h.handleSOSHistory).Methods("GET")
	api.HandleFunc("/sos", h.handleSOSHistory).Methods("GET")
	api.HandleFunc("/sos/{id}", h.handleGetSOS).Methods("GET")
	api.HandleFunc("/sos/{id}/status", h.handleUpdateSOSStatus).Methods("PUT")
	api.HandleFunc("/sos/{id}/cancel", h.handleCancelSOS).Methods("DELETE")

	return router
}
