package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8420"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type QueueEnv struct {
	// Root of the five state directories (pending, in-progress, blocked,
	// completed, learning).
	QueueDir        string `envconfig:"QUEUE_DIR" default:"~/.claude-context/orchestrator/queue"`
	AgentWorkingDir string `envconfig:"AGENT_WORKING_DIR" default:"~"`
}

type SessionEnv struct {
	StatusServerURL string        `envconfig:"STATUS_SERVER_URL" default:"http://localhost:8421"`
	StatusDir       string        `envconfig:"STATUS_DIR" default:"~/.orch-v2/status"`
	TmuxBin         string        `envconfig:"TMUX_BIN" default:"tmux"`
	ExternalTimeout time.Duration `envconfig:"EXTERNAL_TIMEOUT" default:"3s"`
}

type StorageEnv struct {
	Type         string `envconfig:"STORAGE_TYPE" default:"local"`
	TemplatesDir string `envconfig:"TEMPLATES_DIR" default:"~/.claude-context/orchestrator/templates"`
	AgentsFile   string `envconfig:"AGENTS_FILE"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"orch-v2/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type Env struct {
	BaseEnv
	QueueEnv
	SessionEnv
	StorageEnv
}

const namespace = "DASHBOARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	env.QueueDir = ExpandHome(env.QueueDir)
	env.StatusDir = ExpandHome(env.StatusDir)
	env.TemplatesDir = ExpandHome(env.TemplatesDir)
	env.AgentsFile = ExpandHome(env.AgentsFile)
	return &env, nil
}

// ExpandHome resolves a leading "~" against the current user's home
// directory. Paths without the prefix pass through unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
