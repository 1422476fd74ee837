package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/NarrativeEngine/internal/config"
	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
	"github.com/AaronLay10/NarrativeEngine/internal/sequencer"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// Engine is the traversal surface the API drives. *sequencer.Runtime
// implements it.
type Engine interface {
	Start(ctx context.Context, root string) (*sequencer.Sequencer, error)
	Stop() error
	Active() bool
	RunID() string
	Record() *record.Record
	Vars() variables.Store
}

// History reads durable sequence entries.
type History interface {
	History(ctx context.Context, limit int) ([]record.Entry, error)
}

// Options configures a Server. Engine and Events are required.
type Options struct {
	Name        string
	Engine      Engine
	Events      *events.Bus
	History     History
	Credentials config.Credentials
	TLS         *TLSConfig

	// MQTTConnected reports broker state for /metrics; nil means disabled.
	MQTTConnected func() bool

	// Context bounds traversals started over HTTP.
	Context context.Context
}

// Server is the HTTP host surface of one engine.
type Server struct {
	name          string
	engine        Engine
	bus           *events.Bus
	history       History
	auth          *authConfig
	tls           *TLSConfig
	mqttConnected func() bool
	ctx           context.Context
	started       time.Time
	upgrader      websocket.Upgrader
}

func New(opts Options) *Server {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		name:          opts.Name,
		engine:        opts.Engine,
		bus:           opts.Events,
		history:       opts.History,
		auth:          newAuth(opts.Credentials),
		tls:           opts.TLS,
		mqttConnected: opts.MQTTConnected,
		ctx:           ctx,
		started:       time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// AuthEnabled returns true if authentication is configured.
func (s *Server) AuthEnabled() bool { return s.auth.enabled }

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.auth.requireAdmin(s.metricsHandler))
	mux.HandleFunc("GET /events", s.auth.requireAnyRole(s.eventsHandler))
	mux.HandleFunc("GET /ws/events", s.auth.requireAnyRole(s.wsEventsHandler))
	mux.HandleFunc("GET /sequence", s.auth.requireAnyRole(s.sequenceHandler))
	mux.HandleFunc("GET /sequence/history", s.auth.requireAnyRole(s.historyHandler))
	mux.HandleFunc("GET /traversal", s.auth.requireAnyRole(s.traversalHandler))
	mux.HandleFunc("POST /traversal/start", s.auth.requireAnyRole(s.startHandler))
	mux.HandleFunc("POST /traversal/stop", s.auth.requireAnyRole(s.stopHandler))
	mux.HandleFunc("POST /variables", s.auth.requireAnyRole(s.variableHandler))
	return mux
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// Response is the body of every mutating endpoint.
type Response struct {
	OK    bool   `json:"ok"`
	RunID string `json:"run_id,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{OK: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "sequencer",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Snapshot())
}

// sequenceHandler serves the in-memory record. ?run=current limits it to the
// active traversal and ?format=text renders the log.
func (s *Server) sequenceHandler(w http.ResponseWriter, r *http.Request) {
	rec := s.engine.Record()
	entries := rec.Entries()
	if run := r.URL.Query().Get("run"); run != "" {
		if run == "current" {
			run = s.engine.RunID()
		}
		entries = rec.Run(run)
	}
	if r.URL.Query().Get("format") == string(record.FormatText) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = record.Write(w, entries, record.FormatText)
		return
	}
	if entries == nil {
		entries = []record.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.history.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if entries == nil {
		entries = []record.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type TraversalStatus struct {
	Active  bool   `json:"active"`
	RunID   string `json:"run_id,omitempty"`
	Entries int    `json:"entries"`
}

func (s *Server) traversalHandler(w http.ResponseWriter, r *http.Request) {
	runID := s.engine.RunID()
	st := TraversalStatus{Active: s.engine.Active(), RunID: runID}
	if runID != "" {
		st.Entries = len(s.engine.Record().Run(runID))
	}
	writeJSON(w, http.StatusOK, st)
}

type StartRequest struct {
	Root string `json:"root"`
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Root == "" {
		writeError(w, http.StatusBadRequest, "root required")
		return
	}

	seq, err := s.engine.Start(s.ctx, req.Root)
	switch {
	case errors.Is(err, sequencer.ErrUnknownNode):
		writeError(w, http.StatusNotFound, "node not found")
	case errors.Is(err, sequencer.ErrTraversalActive):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, Response{OK: true, RunID: seq.RunID()})
	}
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	runID := s.engine.RunID()
	if err := s.engine.Stop(); err != nil {
		if errors.Is(err, sequencer.ErrNoTraversal) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true, RunID: runID})
}

type VariableRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Server) variableHandler(w http.ResponseWriter, r *http.Request) {
	var req VariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := s.engine.Vars().Set(req.Name, req.Value); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, variables.ErrUnknownVariable) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true})
}

// ListenAndServe serves on port until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (tls)\n", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.bus.CloseAllSubscribers()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
