package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awaistahir/smart-tariff/internal/batch"
	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/awaistahir/smart-tariff/internal/ingest"
	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const (
	version = "1.0.0"

	maxUploadBytes = 64 << 20
)

type Server struct {
	ctx      context.Context
	store    *store.Store
	jobs     *batch.Manager
	defaults engine.Settings
	now      func() time.Time

	// recalc serializes every write that recomputes or removes a scenario, including each
	// step of a bulk job
	recalc sync.Mutex
}

// NewServer creates the API server. Background jobs run under ctx rather than the
// request that started them.
func NewServer(ctx context.Context, st *store.Store, jobs *batch.Manager, defaults engine.Settings) *Server {
	return &Server{
		ctx:      ctx,
		store:    st,
		jobs:     jobs,
		defaults: defaults,
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Route("/api", func(r chi.Router) {
		// progress sockets outlive the request timeout
		r.Get("/jobs/{id}/ws", s.handleJobSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/status", s.handleStatus)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)
			r.Get("/scenarios", s.handleListScenarios)
			r.Post("/scenarios", s.handleCreateScenario)
			r.Get("/scenarios/new", s.handleNewScenario)
			r.Get("/scenarios/{id}", s.handleGetScenario)
			r.Put("/scenarios/{id}", s.handleUpdateScenario)
			r.Delete("/scenarios/{id}", s.handleDeleteScenario)
			r.Post("/scenarios/{id}/copy", s.handleCopyScenario)
			r.Post("/scenarios/{id}/recalculate", s.handleRecalculateScenario)
			r.Post("/recalculate", s.handleRecalculateAll)
			r.Post("/import", s.handleImport)
			r.Get("/coverage", s.handleCoverage)
			r.Get("/jobs/{id}", s.handleGetJob)
		})
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, first, last, err := s.store.ReadingStats(ctx)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	scenarios, err := s.store.ListScenarios(ctx)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	status := map[string]interface{}{
		"status":    "ok",
		"version":   version,
		"readings":  count,
		"scenarios": len(scenarios),
		"busy":      s.jobs.Running(),
	}
	if count > 0 {
		status["first_reading"] = first
		status["last_reading"] = last
	}
	respondJSON(w, http.StatusOK, status)
}

// settings returns the saved settings, falling back to the configured defaults
func (s *Server) settings(ctx context.Context) (engine.Settings, error) {
	st, err := s.store.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.defaults, nil
	}
	return st, err
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st engine.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	candidate := st.NewScenario(s.now())
	candidate.Name = "settings"
	if err := engine.Validate(candidate); err != nil {
		respondErr(w, r, err)
		return
	}

	if err := s.store.SaveSettings(r.Context(), st); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.store.ListScenarios(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleNewScenario(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st.NewScenario(s.now().In(s.store.Location())))
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var sc engine.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sc.ID = 0
	s.recalc.Lock()
	defer s.recalc.Unlock()
	if err := engine.RecalculateScenario(r.Context(), s.store, &sc); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := scenarioID(w, r)
	if !ok {
		return
	}

	sc, err := s.store.GetScenario(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := scenarioID(w, r)
	if !ok {
		return
	}

	var sc engine.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.recalc.Lock()
	defer s.recalc.Unlock()
	if _, err := s.store.GetScenario(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}

	sc.ID = id
	if err := engine.RecalculateScenario(r.Context(), s.store, &sc); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := scenarioID(w, r)
	if !ok {
		return
	}

	s.recalc.Lock()
	defer s.recalc.Unlock()
	if err := s.store.DeleteScenario(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := scenarioID(w, r)
	if !ok {
		return
	}

	s.recalc.Lock()
	defer s.recalc.Unlock()
	sc, err := s.store.GetScenario(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	dup := sc.Copy()
	if err := s.store.SaveScenario(r.Context(), &dup); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, dup)
}

func (s *Server) handleRecalculateScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := scenarioID(w, r)
	if !ok {
		return
	}

	s.recalc.Lock()
	defer s.recalc.Unlock()
	sc, err := engine.RecalculateByID(r.Context(), s.store, id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Start(s.ctx, "Recalculate all scenarios", func(ctx context.Context, job *batch.Job) error {
		return engine.RecalculateAllLocked(ctx, s.store, job, &s.recalc)
	})
	respondJSON(w, http.StatusAccepted, job.Status())
}

// handleImport accepts a CSV file either as the "file" field of a multipart form or as
// the raw request body. The file is parsed before responding; saving the readings and
// recalculating every scenario continue as a job. Timestamps are taken as the end of each
// half-hour slot unless slot_start=true, which marks them as slot starts.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()
		body = file
	}

	readings, err := ingest.ParseCSV(body, s.store.Location())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if slotStart, _ := strconv.ParseBool(r.URL.Query().Get("slot_start")); slotStart {
		readings = ingest.ShiftToSlotEnd(readings)
	}

	job := s.jobs.Start(s.ctx, "Import readings", func(ctx context.Context, job *batch.Job) error {
		job.Report(0, 0, "Saving "+strconv.Itoa(len(readings))+" readings")
		if err := s.store.UpsertReadings(ctx, readings); err != nil {
			return err
		}
		return engine.RecalculateAllLocked(ctx, s.store, job, &s.recalc)
	})
	respondJSON(w, http.StatusAccepted, job.Status())
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	readings, err := s.store.AllReadings(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	ranges := ingest.Coverage(readings)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ranges": ranges,
		"gaps":   ingest.Gaps(ranges),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Status())
}

func scenarioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid scenario id")
		return 0, false
	}
	return id, true
}

// respondErr maps domain errors onto HTTP statuses
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *engine.ConfigurationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateName):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cfgErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
			"field": cfgErr.Field,
		})
	case errors.Is(err, ingest.ErrMalformedInput):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Ctx(r.Context()).ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
