// Package server exposes a live simulation over HTTP: read accessors for the
// graph and objects, graph exports, console commands and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cxd309/railsim/internal/console"
	"github.com/cxd309/railsim/internal/export"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// Session is the live simulation behind the server.
type Session interface {
	console.Session
	Graph() *graph.Graph
}

// Server routes HTTP requests to a session.
type Server struct {
	session   Session
	console   *console.Console
	registry  *metrics.Registry
	logger    logging.Logger
	router    *mux.Router
	startTime time.Time
}

// New builds the router. registry may be nil, in which case /metrics is not
// served and requests are not counted.
func New(s Session, registry *metrics.Registry, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	srv := &Server{
		session:   s,
		console:   console.New(s),
		registry:  registry,
		logger:    logger.With(logging.Component("server")),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	r := s.router

	// Graph
	r.HandleFunc("/api/graph", s.getGraph).Methods("GET")
	r.HandleFunc("/api/graph/bbox", s.getBoundingBox).Methods("GET")
	r.HandleFunc("/api/nodes/{id}", s.getNode).Methods("GET")
	r.HandleFunc("/api/edges/{id}", s.getEdge).Methods("GET")
	r.HandleFunc("/api/path", s.getPath).Methods("GET")

	// Simulation
	r.HandleFunc("/api/objects", s.getObjects).Methods("GET")
	r.HandleFunc("/api/objects/{id}", s.getObject).Methods("GET")
	r.HandleFunc("/api/metrics", s.getMetrics).Methods("GET")
	r.HandleFunc("/api/commands", s.postCommand).Methods("POST")

	// Export
	r.HandleFunc("/api/export/{format}", s.getExport).Methods("GET")

	// Admin
	r.HandleFunc("/health", s.health).Methods("GET")
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry.GetPrometheusRegistry(), promhttp.HandlerOpts{})).Methods("GET")
	}

	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)

	// Preflight requests match a path but no method, so mux hands them to
	// MethodNotAllowedHandler, which bypasses r.Use.
	r.MethodNotAllowedHandler = corsMiddleware(http.HandlerFunc(s.methodNotAllowed))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// ServeHTTP lets the server be used directly as a handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", logging.String("addr", addr))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Middleware

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.registry != nil {
			s.registry.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), elapsed)
		}
		s.logger.Debug("request",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", rec.status),
			logging.Latency(elapsed),
		)
	})
}

// Responses

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response failed", logging.Int("status", status), logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func pathInt(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

// Graph handlers

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	g := s.session.Graph()
	s.writeJSON(w, http.StatusOK, graph.GraphData{
		Directed: g.Directed(),
		Nodes:    g.Nodes(),
		Edges:    g.Edges(),
	})
}

func (s *Server) getBoundingBox(w http.ResponseWriter, r *http.Request) {
	bound, ok := s.session.Graph().BoundingBox()
	if !ok {
		s.writeError(w, http.StatusNotFound, "graph has no nodes")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{
		"min_lon": bound.Min.Lon(),
		"min_lat": bound.Min.Lat(),
		"max_lon": bound.Max.Lon(),
		"max_lat": bound.Max.Lat(),
	})
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "Invalid node ID")
		return
	}
	node, ok := s.session.Graph().Node(graph.NodeID(id))
	if !ok {
		s.writeError(w, http.StatusNotFound, "node not found")
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) getEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "Invalid edge ID")
		return
	}
	edge, ok := s.session.Graph().Edge(graph.EdgeID(id))
	if !ok {
		s.writeError(w, http.StatusNotFound, "edge not found")
		return
	}
	s.writeJSON(w, http.StatusOK, edge)
}

func (s *Server) getPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, http.StatusBadRequest, "from and to must be node IDs")
		return
	}

	path, err := s.session.Graph().ShortestPath(graph.NodeID(from), graph.NodeID(to))
	switch {
	case errors.Is(err, graph.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrNoPath):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, path)
	}
}

// Simulation handlers

func (s *Server) getObjects(w http.ResponseWriter, r *http.Request) {
	frame := s.session.Frame()
	obs := frame.Observation
	objects := obs.Objects()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tick":    obs.Tick(),
		"elapsed": obs.Elapsed().Seconds(),
		"state":   frame.State.String(),
		"speedup": frame.Speedup,
		"objects": objects,
		"count":   len(objects),
	})
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "Invalid object ID")
		return
	}
	st, ok := s.session.Frame().Observation.Object(railway.ObjectID(id))
	if !ok {
		s.writeError(w, http.StatusNotFound, "object not found")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	set := s.session.Metrics()
	resp := map[string]any{"values": set.Values()}
	for _, h := range set.Handlers() {
		if ac, ok := h.(*metrics.ActionCount); ok {
			resp["actions"] = ac.Counts()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// CommandRequest carries one console command line.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse is the output of an executed command.
type CommandResponse struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	out, err := s.console.Execute(r.Context(), req.Command)
	if err != nil {
		s.logger.Warn("command failed", logging.String("command", req.Command), logging.Error(err))
		s.writeError(w, commandStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Command: req.Command, Output: out})
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, console.ErrUsage),
		errors.Is(err, console.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, console.ErrUnknownMetric),
		errors.Is(err, simulation.ErrObjectNotFound),
		errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

// Export handlers

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	out, err := export.Format(s.session.Graph(), format, export.DefaultSVGOptions())
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	contentType := "text/vnd.graphviz"
	if format == "svg" {
		contentType = "image/svg+xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write([]byte(out))
}

// Admin handlers

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}
