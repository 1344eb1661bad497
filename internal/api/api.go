package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/criticalmonitor"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/optimizer"
)

// Server exposes the controller's service calls and diagnostics over a
// local HTTP API.
type Server struct {
	manager *optimizer.Manager
	monitor *criticalmonitor.Monitor
	httpSrv *http.Server
}

func NewServer(port int, manager *optimizer.Manager, monitor *criticalmonitor.Monitor) *Server {
	s := &Server{manager: manager, monitor: monitor}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/learning", s.handleLearningStatus)
	mux.HandleFunc("GET /api/critical", s.handleCritical)

	mux.HandleFunc("POST /api/services/reload", s.handleReload)
	mux.HandleFunc("POST /api/services/force_optimize", s.handleForceOptimize)
	mux.HandleFunc("POST /api/services/reset_smoothing", s.handleResetSmoothing)
	mux.HandleFunc("POST /api/services/set_room_override", s.handleSetRoomOverride)
	mux.HandleFunc("POST /api/services/reset_error_count", s.handleResetErrorCount)
	mux.HandleFunc("POST /api/services/analyze_learning", s.handleAnalyzeLearning)
	mux.HandleFunc("POST /api/services/reset_learning", s.handleResetLearning)
	mux.HandleFunc("POST /api/services/enable_learning", s.handleEnableLearning)
	mux.HandleFunc("POST /api/services/disable_learning", s.handleDisableLearning)
	mux.HandleFunc("POST /api/override", s.handleManualOverride)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("API server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result := s.manager.LastResult()
	if result == nil {
		writeError(w, http.StatusServiceUnavailable, "no optimization cycle has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLearningStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.AnalyzeLearning())
}

func (s *Server) handleCritical(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.manager.Reload()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleForceOptimize(w http.ResponseWriter, r *http.Request) {
	result := s.manager.ForceOptimize(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResetSmoothing(w http.ResponseWriter, r *http.Request) {
	s.manager.ResetSmoothing()
	writeJSON(w, http.StatusOK, map[string]string{"status": "smoothing reset"})
}

func (s *Server) handleSetRoomOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName       string `json:"room_name"`
		ControlEnabled *bool  `json:"control_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RoomName == "" || req.ControlEnabled == nil {
		writeError(w, http.StatusBadRequest, "room_name and control_enabled are required")
		return
	}
	if err := s.manager.SetRoomOverride(req.RoomName, *req.ControlEnabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_name":       req.RoomName,
		"control_enabled": *req.ControlEnabled,
	})
}

func (s *Server) handleResetErrorCount(w http.ResponseWriter, r *http.Request) {
	s.manager.ResetErrorCount()
	writeJSON(w, http.StatusOK, map[string]string{"status": "error count reset"})
}

func (s *Server) handleAnalyzeLearning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.AnalyzeLearning())
}

func (s *Server) handleResetLearning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string `json:"room_name"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	s.manager.ResetLearning(req.RoomName)
	writeJSON(w, http.StatusOK, map[string]string{"status": "learning reset"})
}

func (s *Server) handleEnableLearning(w http.ResponseWriter, r *http.Request) {
	s.manager.SetLearningEnabled(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "learning enabled"})
}

func (s *Server) handleDisableLearning(w http.ResponseWriter, r *http.Request) {
	s.manager.SetLearningEnabled(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "learning disabled"})
}

func (s *Server) handleManualOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	s.manager.SetManualOverride(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"manual_override": *req.Enabled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
