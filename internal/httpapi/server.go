package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/incident"
	"github.com/omniapi/monitor/internal/monitor"
)

// Server exposes the check triggers over HTTP. It is deliberately thin: no
// target CRUD, no status pages, just "run the checks" plus incident stats.
type Server struct {
	Logger          *zap.Logger
	Monitor         *monitor.Service
	Incidents       *incident.Tracker
	CronSecret      string
	Concurrency     int
	CronConcurrency int
}

func NewServer(l *zap.Logger, m *monitor.Service, inc *incident.Tracker, cronSecret string) *Server {
	return &Server{
		Logger:          l,
		Monitor:         m,
		Incidents:       inc,
		CronSecret:      cronSecret,
		Concurrency:     5,
		CronConcurrency: 10,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/check-all", s.handleCheckAll)
	r.Post("/api/apis/{id}/check", s.handleCheckOne)
	r.Get("/api/apis/{id}/incidents/stats", s.handleIncidentStats)
	r.Get("/api/cron", s.handleCron)

	return r
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.Monitor.CheckAll(r.Context(), s.Concurrency)
	if err != nil {
		s.Logger.Warn("check_all_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to check APIs")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckOne(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	out, err := s.Monitor.CheckOne(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIncidentStats(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	stats, err := s.Incidents.StatsFor(r.Context(), id, days)
	if err != nil {
		s.Logger.Warn("incident_stats_error", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load incident stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCron is the periodic trigger endpoint. External cron services call
// it with the shared bearer secret.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if s.CronSecret == "" || r.Header.Get("Authorization") != "Bearer "+s.CronSecret {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	res, err := s.Monitor.CheckAll(r.Context(), s.CronConcurrency)
	if err != nil {
		s.Logger.Warn("cron_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to run cron job")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
