package session

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orchv2/dashboard/pkg/cerr"
)

type Server struct {
	aggregator *Aggregator
}

func NewServer(aggregator *Aggregator) *Server {
	return &Server{aggregator: aggregator}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/sessions", s.handleList)
	r.Post("/sessions/kill-all", s.handleKillAll)
	r.Post("/sessions/{sessionID}/kill", s.handleKill)
	r.Get("/sessions/{sessionID}/output", s.handleOutput)
	r.Get("/attach-command/{sessionID}", s.handleAttachCommand)
}

type listResponse struct {
	Sessions       []Session `json:"sessions"`
	StatusServerOK bool      `json:"status_server_ok"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, reachable, err := s.aggregator.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, listResponse{Sessions: sessions, StatusServerOK: reachable})
}

type killResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "sessionID")
	if err := s.aggregator.Kill(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, killResponse{Success: true, Message: "Killed " + id})
}

type killAllResponse struct {
	Success bool     `json:"success"`
	Killed  []string `json:"killed"`
	Errors  []string `json:"errors"`
}

func (s *Server) handleKillAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	killed, errs, err := s.aggregator.KillAll(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, killAllResponse{Success: true, Killed: killed, Errors: errs})
}

type outputResponse struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
	Lines     int    `json:"lines"`
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "sessionID")
	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			lines = v
		}
	}
	out, lines, err := s.aggregator.Output(ctx, id, lines)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, outputResponse{SessionID: id, Output: out, Lines: lines})
}

type attachCommandResponse struct {
	Command string `json:"command"`
}

func (s *Server) handleAttachCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.SetJSONResponse(ctx, attachCommandResponse{
		Command: s.aggregator.AttachCommand(ctx, chi.URLParam(r, "sessionID")),
	})
}
