// Package api serves the lamp store and engine context over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
	"github.com/autodomum/autodomum/internal/metrics"
)

const maxBodyBytes = 64 << 10

// Engine is the engine surface the API uses. *engine.Engine satisfies it.
type Engine interface {
	Context() *engine.Context
	State() engine.State
	ScheduleOnceIn(d time.Duration, name string) (engine.FireOnce, error)
	ScheduleOnceAt(hour, minute int, name string) (engine.FireOnce, error)
}

// Server holds the HTTP handlers.
type Server struct {
	engine  Engine
	lamps   lamp.Store
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewServer creates a Server. m may be nil.
func NewServer(e Engine, lamps lamp.Store, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: e, lamps: lamps, metrics: m, log: log}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/health", s.metrics.WrapHandler("health", http.HandlerFunc(s.health))).Methods(http.MethodGet)
	r.Handle("/lamps", s.metrics.WrapHandler("lamps", http.HandlerFunc(s.listLamps))).Methods(http.MethodGet)
	r.Handle("/lamps/{id}", s.metrics.WrapHandler("lamp", http.HandlerFunc(s.getLamp))).Methods(http.MethodGet)
	r.Handle("/lamps/{id}", s.metrics.WrapHandler("lamp_update", http.HandlerFunc(s.updateLamp))).Methods(http.MethodPost)
	r.Handle("/context", s.metrics.WrapHandler("context", http.HandlerFunc(s.contextSnapshot))).Methods(http.MethodGet)
	r.Handle("/context/attributes/{key}", s.metrics.WrapHandler("attribute", http.HandlerFunc(s.getAttribute))).Methods(http.MethodGet)
	r.Handle("/context/attributes/{key}", s.metrics.WrapHandler("attribute_set", http.HandlerFunc(s.setAttribute))).Methods(http.MethodPut)
	r.Handle("/events", s.metrics.WrapHandler("events", http.HandlerFunc(s.scheduleEvent))).Methods(http.MethodPost)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.engine.State().String(),
	})
}

func (s *Server) listLamps(w http.ResponseWriter, r *http.Request) {
	lamps, err := s.lamps.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lamps)
}

func (s *Server) getLamp(w http.ResponseWriter, r *http.Request) {
	l, err := s.lamps.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// lampUpdate is the partial lamp accepted by POST /lamps/{id}. Identity
// fields are not part of it.
type lampUpdate struct {
	On *bool `json:"on"`
	X  *int  `json:"x"`
	Y  *int  `json:"y"`
}

func (s *Server) updateLamp(w http.ResponseWriter, r *http.Request) {
	var req lampUpdate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := s.lamps.Update(r.Context(), mux.Vars(r)["id"], lamp.Patch{On: req.On, X: req.X, Y: req.Y})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) contextSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Context().Snapshot())
}

func (s *Server) getAttribute(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, ok := s.engine.Context().Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("attribute %q not set", key))
		return
	}
	data, err := engine.MarshalValue(v)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(data, '\n'))
}

// setAttribute stores the JSON scalar body under key. A null body removes it.
func (s *Server) setAttribute(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(mux.Vars(r)["key"])
	if key == "" {
		writeError(w, http.StatusBadRequest, "attribute key must not be blank")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := engine.UnmarshalValue(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid attribute value: %v", err))
		return
	}

	s.engine.Context().SetValue(key, v)
	if v == nil {
		s.log.Info("attribute removed over http", "key", key)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.log.Info("attribute set over http", "key", key, "value", v.String())
	w.WriteHeader(http.StatusNoContent)
}

// scheduleRequest schedules a named event either after Delay or tomorrow at
// Hour:Minute.
type scheduleRequest struct {
	Name   string `json:"name"`
	Delay  string `json:"delay,omitempty"`
	Hour   *int   `json:"hour,omitempty"`
	Minute *int   `json:"minute,omitempty"`
}

type scheduleResponse struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

func (s *Server) scheduleEvent(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		ev  engine.FireOnce
		err error
	)
	switch {
	case req.Delay != "" && (req.Hour != nil || req.Minute != nil):
		writeError(w, http.StatusBadRequest, "delay and hour/minute are mutually exclusive")
		return
	case req.Delay != "":
		d, parseErr := time.ParseDuration(strings.TrimSpace(req.Delay))
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid delay: %v", parseErr))
			return
		}
		ev, err = s.engine.ScheduleOnceIn(d, req.Name)
	case req.Hour != nil && req.Minute != nil:
		ev, err = s.engine.ScheduleOnceAt(*req.Hour, *req.Minute, req.Name)
	default:
		writeError(w, http.StatusBadRequest, "either delay or hour and minute are required")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	s.log.Info("event scheduled over http", "name", ev.Name, "at", ev.At)
	writeJSON(w, http.StatusCreated, scheduleResponse{Name: ev.Name, At: ev.At})
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lamp.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case engine.IsInvalidArgument(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
