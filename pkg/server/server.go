// Package server exposes the HTTP surface: starting a research run and
// streaming its session events over SSE.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/orchestrator"
	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/types"
)

// DefaultPingInterval is the keepalive cadence on idle streams.
const DefaultPingInterval = 15 * time.Second

// Server routes HTTP requests to the orchestrator and session manager.
type Server struct {
	orch         *orchestrator.Orchestrator
	sessions     *session.Manager
	pingInterval time.Duration
	log          *zap.Logger
}

// New creates the server. A pingInterval of 0 selects the default.
func New(orch *orchestrator.Orchestrator, sessions *session.Manager, pingInterval time.Duration, log *zap.Logger) *Server {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Server{orch: orch, sessions: sessions, pingInterval: pingInterval, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/research", s.handleStart)
	mux.HandleFunc("GET /api/research/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type startResponse struct {
	SessionID string          `json:"session_id"`
	Proposal  json.RawMessage `json:"proposal"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic    string `json:"topic"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, cherr.New(cherr.ErrInvalidInput, "invalid request body"))
		return
	}

	sess, err := s.orch.StartResearch(r.Context(), types.ResearchRequest{Topic: req.Topic, Language: req.Language})
	if err != nil {
		status := http.StatusBadGateway
		var rerr *cherr.ResearchError
		if errors.As(err, &rerr) && strings.HasPrefix(rerr.Code, "CHR-3") {
			status = http.StatusBadRequest
		}
		s.log.Warn("research start failed", zap.Error(err))
		s.writeError(w, status, err)
		return
	}

	proposal, err := json.Marshal(sess.Proposal)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, cherr.Wrap(err, cherr.ErrInternal))
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{SessionID: sess.ID, Proposal: proposal})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err := sess.Claim(); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}

	// The run starts when the stream attaches and outlives this request's
	// context.
	go s.orch.Run(context.Background(), sess)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, cherr.New(cherr.ErrInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		evt, ok, done := sess.Next(r.Context(), s.pingInterval)
		switch {
		case ok:
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				s.log.Error("event payload marshal failed",
					zap.String("session", sess.ID),
					zap.String("type", string(evt.Type)),
					zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case done:
			s.sessions.Remove(sess.ID)
			return
		default:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	code := cherr.ErrInternal
	var rerr *cherr.ResearchError
	if errors.As(err, &rerr) {
		code = rerr.Code
	}
	s.writeJSON(w, status, map[string]string{
		"error":   code,
		"message": err.Error(),
	})
}
