package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/orchv2/dashboard/internal/agent"
	"github.com/orchv2/dashboard/internal/config"
	"github.com/orchv2/dashboard/internal/launcher"
	"github.com/orchv2/dashboard/internal/session"
	"github.com/orchv2/dashboard/internal/status"
	"github.com/orchv2/dashboard/internal/task"
	taskrepo "github.com/orchv2/dashboard/internal/task/repositoryimpl"
	"github.com/orchv2/dashboard/internal/template"
	templaterepo "github.com/orchv2/dashboard/internal/template/repositoryimpl"
	"github.com/orchv2/dashboard/internal/tmux"
	"github.com/orchv2/dashboard/pkg/clog"
	"github.com/orchv2/dashboard/pkg/panicerr"
	"github.com/orchv2/dashboard/pkg/storage"

	server "github.com/orchv2/dashboard/internal"
)

var (
	app = kingpin.New("dashd", "Task queue dashboard backend for AI coding agents")

	serveCmd  = app.Command("serve", "Start the dashboard API server").Default()
	serveAddr = serveCmd.Flag("addr", "Address to bind to").String()
	servePort = serveCmd.Flag("port", "Port to bind to").String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case serveCmd.FullCommand():
		serve(*serveAddr, *servePort)
	}
}

func serve(addr, port string) {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	if addr != "" {
		env.HTTPHost = addr
	}
	if port != "" {
		env.HTTPPort = port
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage for the read-only stores (templates, status fallback)
	templateStore, err := newStore(env, env.TemplatesDir, "templates/")
	if err != nil {
		slog.Error("failed to create template storage", "error", err)
		os.Exit(1)
	}
	statusStore, err := newStore(env, env.StatusDir, "status/")
	if err != nil {
		slog.Error("failed to create status storage", "error", err)
		os.Exit(1)
	}

	// Setup collaborators
	tmuxRunner := tmux.NewExecRunner(env.TmuxBin, env.ExternalTimeout)
	statusClient := status.NewClient(env.StatusServerURL, env.ExternalTimeout, statusStore)

	catalog, err := agent.LoadCatalog(env.AgentsFile)
	if err != nil {
		slog.Error("failed to load agent catalog", "error", err)
		os.Exit(1)
	}

	// Setup repositories
	taskRepo, err := taskrepo.NewDirRepository(env.QueueDir)
	if err != nil {
		slog.Error("failed to open queue directory", "error", err)
		os.Exit(1)
	}
	templateEngine := template.NewEngine(templaterepo.NewStorageRepository(templateStore))

	// Setup servers
	agentLauncher := launcher.New(tmuxRunner, catalog, env.AgentWorkingDir)
	taskServer := task.NewServer(taskRepo, templateEngine, agentLauncher, env.AgentWorkingDir)
	templateServer := template.NewServer(templateEngine)
	sessionServer := session.NewServer(session.NewAggregator(tmuxRunner, statusClient))
	agentServer := agent.NewServer(catalog)

	srv := server.NewServer(env, taskServer, templateServer, sessionServer, agentServer, tmuxRunner, statusClient)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	run := panicerr.Safe(func() error {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	go func() {
		if err := run(); err != nil {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newStore(env *config.Env, localDir, s3Prefix string) (storage.Storage, error) {
	if env.StorageEnv.Type == "s3" {
		return storage.NewS3Storage(context.Background(), env.S3Bucket, env.S3Prefix+s3Prefix, env.S3Region)
	}
	return storage.NewLocalStorage(localDir)
}
