// Package api exposes the operational HTTP surface: health, the latest run
// outcome and Prometheus metrics. It is read-only; all state changes go
// through the pipeline.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/metrics"
)

// Server serves the ops endpoints on a loopback or cluster-internal address.
type Server struct {
	store  repo.Store
	log    *zap.Logger
	server *http.Server
}

// NewServer creates the ops server listening on addr.
func NewServer(store repo.Store, addr string, log *zap.Logger) *Server {
	s := &Server{store: store, log: log.Named("api")}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.log.Info("ops server listening", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusResponse is the JSON shape of /status.
type statusResponse struct {
	LastRun *runSummary `json:"last_run"`
}

type runSummary struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	Status            string `json:"status"`
	UsersProcessed    int    `json:"users_processed"`
	MeetingsFound     int    `json:"meetings_found"`
	MeetingsProcessed int    `json:"meetings_processed"`
	ErrorsCount       int    `json:"errors_count"`
	Duration          string `json:"duration"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	run, err := s.store.LatestRunLog(r.Context())
	if err != nil {
		s.log.Error("status query failed", zap.Error(err))
		http.Error(w, "state store unavailable", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{}
	if run != nil {
		resp.LastRun = &runSummary{
			ID:                run.ID,
			Timestamp:         run.RunTimestamp.UTC().Format(time.RFC3339),
			Status:            string(run.Status),
			UsersProcessed:    run.UsersProcessed,
			MeetingsFound:     run.MeetingsFound,
			MeetingsProcessed: run.MeetingsProcessed,
			ErrorsCount:       run.ErrorsCount,
			Duration:          domain.FormatDuration(run.Duration),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
