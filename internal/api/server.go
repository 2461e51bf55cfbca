package api

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/engine/capture"
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/session"
	"NetSpectraIDS/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Controller is the part of the session controller the API drives.
type Controller interface {
	Status() session.Status
	ListInterfaces() ([]model.Interface, error)
	StartBounded(iface string, maxPackets uint64) error
	Stop()
}

// StartRequest is the body of POST /api/v1/session/start.
type StartRequest struct {
	Interface  string `json:"interface"`
	MaxPackets uint64 `json:"max_packets"`
}

// Server serves the status API.
type Server struct {
	controller Controller
	health     HealthChecker
	querier    storage.Querier
	metrics    *metrics.Metrics
	hub        *StatsHub
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the router. querier and m may be nil.
func NewServer(cfg config.APIConfig, controller Controller, health HealthChecker, querier storage.Querier, hub *StatsHub, m *metrics.Metrics) *Server {
	s := &Server{
		controller: controller,
		health:     health,
		querier:    querier,
		metrics:    m,
		hub:        hub,
		router:     mux.NewRouter(),
	}

	s.router.HandleFunc("/api/v1/status", s.statusHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/interfaces", s.interfacesHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/classifier/health", s.classifierHealthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/session/start", s.startHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/session/stop", s.stopHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/history", s.historyHandler).Methods(http.MethodGet)
	if hub != nil {
		s.router.HandleFunc("/ws/stats", hub.HandleWS)
	}
	if m != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) interfacesHandler(w http.ResponseWriter, r *http.Request) {
	ifaces, err := s.controller.ListInterfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ifaces == nil {
		ifaces = []model.Interface{}
	}
	writeJSON(w, http.StatusOK, ifaces)
}

func (s *Server) classifierHealthHandler(w http.ResponseWriter, r *http.Request) {
	h := s.health.Health(r.Context())
	resp := struct {
		model.ServerHealth
		Healthy         bool `json:"healthy"`
		AllModelsLoaded bool `json:"all_models_loaded"`
	}{ServerHealth: h, Healthy: h.IsHealthy(), AllModelsLoaded: h.AllModelsLoaded()}

	status := http.StatusOK
	if !h.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Interface == "" {
		writeError(w, http.StatusBadRequest, "interface is required")
		return
	}

	err := s.controller.StartBounded(req.Interface, req.MaxPackets)
	switch {
	case errors.Is(err, capture.ErrAlreadyCapturing):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, capture.ErrInterfaceNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.controller.Status())
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()
	writeJSON(w, http.StatusAccepted, s.controller.Status())
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusNotFound, "detection storage is not enabled")
		return
	}

	q := r.URL.Query()
	filter := storage.HistoryFilter{SessionID: q.Get("session_id")}
	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", name, err))
			return
		}
		*dst = t
	}

	summaries, err := s.querier.LabelSummaries(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query history: %v", err))
		return
	}
	if summaries == nil {
		summaries = []storage.LabelSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}
