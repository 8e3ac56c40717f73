// Package api exposes the run controller over HTTP: a small ServeMux with
// CORS applied the way gomind's core.CORSMiddleware applies it, and one
// handler per operation in the external interface.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
	"github.com/fieldjoshua/UltrAI-JFF/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF/internal/config"
	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/logging"
	"github.com/fieldjoshua/UltrAI-JFF/internal/runner"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
)

// Server wires the controller into an http.Handler.
type Server struct {
	cfg        *config.Config
	controller *runner.Controller
	logger     logging.Logger
	mux        *http.ServeMux
}

// New builds a Server backed by cfg. It constructs the artifact store and
// cocktail table itself; runDir creation happens lazily per run.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	st, err := store.New(cfg.RunsBase)
	if err != nil {
		return nil, err
	}

	cocktails := cocktail.Default()
	if override := os.Getenv("SYNTH_COCKTAILS_FILE"); override != "" {
		if err := cocktails.LoadOverride(override); err != nil {
			return nil, err
		}
	}

	controller := &runner.Controller{
		Store:            st,
		Cocktails:        cocktails,
		Tracker:          runner.NewTracker(),
		Logger:           logger,
		EventLogMaxBytes: cfg.EventLogMaxBytes,
		NewGateway: func() gateway.Gateway {
			return gateway.New(cfg.OpenRouterKey, cfg.SiteURL, cfg.SiteName, gateway.WithLogger(logger))
		},
	}

	s := &Server{cfg: cfg, controller: controller, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /runs", s.handleStartRun)
	s.mux.HandleFunc("GET /runs/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /runs/{id}/artifacts", s.handleListArtifacts)
	s.mux.HandleFunc("GET /runs/{id}/artifacts/{name}", s.handleGetArtifact)
	s.mux.HandleFunc("GET /runs/{id}/error", s.handleGetError)
	s.mux.HandleFunc("GET /runs/{id}/events", s.handleEvents)
}

// Handler returns the CORS-wrapped mux, ready to hand to http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.cfg.CORSOrigin)(s.mux)
}

func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowedOrigin == "*" || origin == allowedOrigin) {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRunRequest struct {
	Query    string `json:"query"`
	Cocktail string `json:"cocktail"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	if !cocktail.Valid(req.Cocktail) {
		writeError(w, http.StatusBadRequest, "cocktail must be one of "+strings.Join(cocktail.Names, ", "))
		return
	}
	if s.cfg.OpenRouterKey == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrMissingCredential.Error())
		return
	}

	runID, err := s.controller.StartRun(query, req.Cocktail)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

func (s *Server) resolveRunDir(w http.ResponseWriter, r *http.Request) (id, dir string, ok bool) {
	id = r.PathValue("id")
	dir, err := s.controller.Store.Resolve(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if !store.Exists(dir, "01_inputs.json") {
		writeError(w, http.StatusNotFound, "run not found")
		return "", "", false
	}
	return id, dir, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, dir, ok := s.resolveRunDir(w, r)
	if !ok {
		return
	}
	status, err := s.controller.GetStatus(id, dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	id, dir, ok := s.resolveRunDir(w, r)
	if !ok {
		return
	}
	files, err := store.List(dir, "*.*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "files": files})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := s.resolveRunDir(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if !store.ValidArtifactName(name) {
		writeError(w, http.StatusBadRequest, "artifact name must be a plain *.json basename")
		return
	}
	if !store.Exists(dir, name) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	var raw json.RawMessage
	if err := store.Read(dir, name, &raw); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleGetError(w http.ResponseWriter, r *http.Request) {
	id, dir, ok := s.resolveRunDir(w, r)
	if !ok {
		return
	}
	text, present := store.ReadErrorFile(dir)
	if !present {
		writeError(w, http.StatusNotFound, "no error recorded for this run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": id, "error": text})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := s.resolveRunDir(w, r)
	if !ok {
		return
	}
	path := dir + "/events.log"
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "no events recorded for this run")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
