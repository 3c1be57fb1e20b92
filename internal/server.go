package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/orchv2/dashboard/internal/agent"
	"github.com/orchv2/dashboard/internal/config"
	"github.com/orchv2/dashboard/internal/session"
	"github.com/orchv2/dashboard/internal/status"
	"github.com/orchv2/dashboard/internal/task"
	"github.com/orchv2/dashboard/internal/template"
	"github.com/orchv2/dashboard/internal/tmux"
	"github.com/orchv2/dashboard/pkg/cerr"
	"github.com/orchv2/dashboard/pkg/clog"
)

type Server struct {
	server         *http.Server
	env            *config.Env
	taskServer     *task.Server
	templateServer *template.Server
	sessionServer  *session.Server
	agentServer    *agent.Server
	tmuxRunner     tmux.Runner
	statusClient   *status.Client
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	templateServer *template.Server,
	sessionServer *session.Server,
	agentServer *agent.Server,
	tmuxRunner tmux.Runner,
	statusClient *status.Client,
) *Server {
	return &Server{
		env:            env,
		taskServer:     taskServer,
		templateServer: templateServer,
		sessionServer:  sessionServer,
		agentServer:    agentServer,
		tmuxRunner:     tmuxRunner,
		statusClient:   statusClient,
	}
}

// ListenAndServe starts the HTTP server. The provided context becomes
// the base context for all incoming requests, so cancelling it on
// shutdown also cancels in-flight handler contexts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.Get("/health", s.handleHealth)
		s.taskServer.Routes(r)
		s.templateServer.Routes(r)
		s.sessionServer.Routes(r)
		s.agentServer.Routes(r)
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// handleHealth reports the state of the three collaborators. The server
// degrades rather than fails when the status server is down, so only
// the queue directory and tmux gate the ok verdict.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queueOK := false
	if info, err := os.Stat(s.env.QueueDir); err == nil && info.IsDir() {
		queueOK = true
	}
	_, tmuxErr := s.tmuxRunner.ListSessions(ctx)
	tmuxOK := tmuxErr == nil
	statusOK := s.statusClient.Healthy(ctx)

	verdict := "degraded"
	if queueOK && tmuxOK {
		verdict = "ok"
	}
	cerr.SetJSONResponse(ctx, healthResponse{
		Status: verdict,
		Checks: map[string]bool{
			"queue_dir":     queueOK,
			"tmux":          tmuxOK,
			"status_server": statusOK,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
