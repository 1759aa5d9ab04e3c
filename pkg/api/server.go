// Package api pkg/api/server.go serves the read-only status API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mfreeman451/statustracker/pkg/db"
	httpx "github.com/mfreeman451/statustracker/pkg/http"
	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/mfreeman451/statustracker/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TaskStatusSource reports scheduler task state.
type TaskStatusSource interface {
	Status() []scheduler.TaskStatus
}

// SummarySource reports engine summaries.
type SummarySource interface {
	Summaries() []models.TickSummary
	History(engine string) []models.TickSummary
}

// Collections names the collections served by the API.
type Collections struct {
	Endpoints string
	Bridges   string
}

// TicksResponse is the body of GET /api/ticks.
type TicksResponse struct {
	Tasks     []scheduler.TaskStatus `json:"tasks"`
	Summaries []models.TickSummary   `json:"summaries"`
}

type APIServer struct {
	router      *mux.Router
	store       db.Service
	collections Collections
	tasks       TaskStatusSource
	summaries   SummarySource
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
}

// Option customises an APIServer.
type Option func(*APIServer)

func WithTaskStatus(src TaskStatusSource) Option {
	return func(s *APIServer) {
		s.tasks = src
	}
}

func WithSummaries(src SummarySource) Option {
	return func(s *APIServer) {
		s.summaries = src
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *APIServer) {
		s.gatherer = g
	}
}

func NewAPIServer(store db.Service, collections Collections, logger *zap.Logger, opts ...Option) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &APIServer{
		router:      mux.NewRouter(),
		store:       store,
		collections: collections,
		gatherer:    prometheus.DefaultGatherer,
		logger:      logger.Named("api"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler of the server.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes() {
	s.router.Use(httpx.CommonMiddleware)
	s.router.Use(httpx.LoggingMiddleware(s.logger))

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/healthz", s.getHealth).Methods("GET")

	s.router.HandleFunc("/api/endpoints", s.getEndpoints).Methods("GET")
	s.router.HandleFunc("/api/endpoints/{id}", s.getEndpoint).Methods("GET")
	s.router.HandleFunc("/api/bridges", s.getBridges).Methods("GET")
	s.router.HandleFunc("/api/bridges/{id}", s.getBridge).Methods("GET")
	s.router.HandleFunc("/api/ticks", s.getTicks).Methods("GET")
	s.router.HandleFunc("/api/ticks/{engine}", s.getEngineTicks).Methods("GET")
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *APIServer) getEndpoints(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Find(r.Context(), s.collections.Endpoints)
	if err != nil {
		s.internalError(w, "Error listing endpoints", err)

		return
	}

	endpoints := make([]models.MonitoredEndpoint, 0, len(docs))
	for _, doc := range docs {
		endpoints = append(endpoints, models.EndpointFromDocument(doc))
	}

	s.writeJSON(w, endpoints)
}

func (s *APIServer) getEndpoint(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.findByID(w, r, s.collections.Endpoints)
	if !ok {
		return
	}

	s.writeJSON(w, models.EndpointFromDocument(doc))
}

func (s *APIServer) getBridges(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Find(r.Context(), s.collections.Bridges)
	if err != nil {
		s.internalError(w, "Error listing bridges", err)

		return
	}

	bridges := make([]models.Bridge, 0, len(docs))

	for _, doc := range docs {
		b, err := models.BridgeFromDocument(doc)
		if err != nil {
			s.logger.Warn("Skipping malformed bridge", zap.String("bridge_id", b.ID), zap.Error(err))

			continue
		}

		bridges = append(bridges, b)
	}

	s.writeJSON(w, bridges)
}

func (s *APIServer) getBridge(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.findByID(w, r, s.collections.Bridges)
	if !ok {
		return
	}

	b, err := models.BridgeFromDocument(doc)
	if err != nil {
		s.internalError(w, "Error decoding bridge", err)

		return
	}

	s.writeJSON(w, b)
}

func (s *APIServer) getTicks(w http.ResponseWriter, _ *http.Request) {
	resp := TicksResponse{
		Tasks:     []scheduler.TaskStatus{},
		Summaries: []models.TickSummary{},
	}

	if s.tasks != nil {
		resp.Tasks = s.tasks.Status()
	}

	if s.summaries != nil {
		resp.Summaries = s.summaries.Summaries()
	}

	s.writeJSON(w, resp)
}

func (s *APIServer) getEngineTicks(w http.ResponseWriter, r *http.Request) {
	engine := mux.Vars(r)["engine"]

	switch engine {
	case models.EngineProber, models.EngineWatchdog:
	default:
		http.Error(w, "Unknown engine", http.StatusNotFound)

		return
	}

	history := []models.TickSummary{}
	if s.summaries != nil {
		history = s.summaries.History(engine)
	}

	s.writeJSON(w, history)
}

func (s *APIServer) findByID(w http.ResponseWriter, r *http.Request, collection string) (db.Document, bool) {
	id := mux.Vars(r)["id"]

	doc, err := s.store.FindOne(r.Context(), collection, models.FieldID, id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)

		return nil, false
	}

	if err != nil {
		s.internalError(w, "Error loading document", err)

		return nil, false
	}

	return doc, true
}

func (s *APIServer) internalError(w http.ResponseWriter, msg string, err error) {
	if !errors.Is(err, context.Canceled) {
		s.logger.Error(msg, zap.Error(err))
	}

	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", zap.Error(err))
	}
}
