package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/orchv2/dashboard/internal/agent"
	"github.com/orchv2/dashboard/internal/task"
	"github.com/orchv2/dashboard/internal/tmux"
	"github.com/orchv2/dashboard/pkg/cerr"
)

// TmuxLauncher starts agent CLIs inside detached tmux sessions named
// after the task's session id.
type TmuxLauncher struct {
	runner     tmux.Runner
	catalog    *agent.Catalog
	workingDir string
}

func New(runner tmux.Runner, catalog *agent.Catalog, workingDir string) *TmuxLauncher {
	if workingDir == "" {
		workingDir = "~"
	}
	return &TmuxLauncher{runner: runner, catalog: catalog, workingDir: workingDir}
}

var _ task.Launcher = (*TmuxLauncher)(nil)

func (l *TmuxLauncher) Start(ctx context.Context, t *task.Task, specPath, modelOverride string) (*task.LaunchInfo, error) {
	if t.Agent == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task has no agent assigned", nil)
	}
	model := modelOverride
	if model == "" {
		model = t.Model
	}
	if model == "" {
		model = l.catalog.DefaultModel(t.Agent)
	}

	cmd, err := BuildCommand(t.Agent, model, specPath, l.workingDir)
	if err != nil {
		return nil, err
	}

	sessionID := task.SessionID(t.ID)
	name := tmux.SanitizeName(sessionID)
	if err := l.runner.NewSession(ctx, name, "", cmd); err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "failed to start agent session", err)
	}
	slog.InfoContext(ctx, "launched agent session",
		slog.String("session_id", sessionID),
		slog.String("agent", t.Agent),
		slog.String("model", model),
	)
	return &task.LaunchInfo{SessionID: sessionID, Agent: t.Agent, Model: model}, nil
}

const pickupInstruction = "Read the spec and execute it completely. " +
	"Move to in-progress, update status, commit changes with git proof before marking complete."

// BuildCommand renders the shell command an agent session runs. The
// working directory is substituted unquoted so ~ expands in the shell.
func BuildCommand(agentID, model, specPath, workingDir string) (string, error) {
	prompt, err := quote(fmt.Sprintf("Pick up task: %s - %s", specPath, pickupInstruction))
	if err != nil {
		return "", err
	}

	switch agentID {
	case "codex":
		m, err := quote(model)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cd %s && codex --dangerously-bypass-approvals-and-sandbox -m %s %s",
			workingDir, m, prompt), nil
	case "claude":
		m, err := quote(model)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cd %s && claude --model %s --permission-mode acceptEdits -p %s",
			workingDir, m, prompt), nil
	case "gemini":
		modelFlag := ""
		if model != "" {
			m, err := quote(model)
			if err != nil {
				return "", err
			}
			modelFlag = "-m " + m + " "
		}
		return fmt.Sprintf("cd %s && GEMINI_API_KEY=$GEMINI_API_KEY gemini %s--yolo --prompt %s",
			workingDir, modelFlag, prompt), nil
	case "human":
		spec, err := quote(specPath)
		if err != nil {
			return "", err
		}
		banner, err := quote("Human task: " + specPath)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("echo %s && cat %s && bash", banner, spec), nil
	default:
		return "", cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown agent %q", agentID), nil)
	}
}

func quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", cerr.NewError(cerr.InvalidArgument, "value cannot be quoted for the shell", err)
	}
	return strings.TrimSpace(q), nil
}
