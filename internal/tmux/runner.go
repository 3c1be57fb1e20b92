package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/orchv2/dashboard/pkg/cerr"
)

// Session is one live tmux session as reported by list-sessions.
type Session struct {
	Name     string
	Created  time.Time
	Activity time.Time
	Windows  int
}

// Runner abstracts the tmux binary so aggregation and launch logic can
// be tested without a tmux server.
type Runner interface {
	ListSessions(ctx context.Context) ([]Session, error)
	HasSession(ctx context.Context, name string) bool
	NewSession(ctx context.Context, name, workingDir, command string) error
	KillSession(ctx context.Context, name string) error
	CapturePane(ctx context.Context, name string, lines int) (string, error)
}

// ExecRunner shells out to tmux with a per-command timeout.
type ExecRunner struct {
	bin     string
	timeout time.Duration
}

func NewExecRunner(bin string, timeout time.Duration) *ExecRunner {
	if bin == "" {
		bin = "tmux"
	}
	return &ExecRunner{bin: bin, timeout: timeout}
}

var _ Runner = (*ExecRunner)(nil)

const listFormat = "#{session_name}|#{session_created}|#{session_activity}|#{session_windows}"

func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, r.bin, args...).Output()
	return string(out), err
}

// ListSessions returns every live session. A non-zero exit from tmux
// means no server is running, which is reported as an empty list; a
// binary that cannot be run at all is an error.
func (r *ExecRunner) ListSessions(ctx context.Context) ([]Session, error) {
	out, err := r.run(ctx, "list-sessions", "-F", listFormat)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cerr.NewError(cerr.DeadlineExceeded, "tmux did not respond", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return []Session{}, nil
		}
		return nil, cerr.NewError(cerr.Unavailable, "tmux is not available", err)
	}
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			continue
		}
		s := Session{Name: parts[0]}
		if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			s.Created = time.Unix(v, 0)
		}
		if v, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			s.Activity = time.Unix(v, 0)
		}
		if v, err := strconv.Atoi(parts[3]); err == nil {
			s.Windows = v
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *ExecRunner) HasSession(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "has-session", "-t", "="+name)
	return err == nil
}

// NewSession starts a detached session running command through the
// user's shell so environment and ~ expansion behave as in a terminal.
func (r *ExecRunner) NewSession(ctx context.Context, name, workingDir, command string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workingDir != "" {
		args = append(args, "-c", workingDir)
	}
	args = append(args, command)
	if _, err := r.run(ctx, args...); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to start tmux session %q", name), err)
	}
	return nil
}

func (r *ExecRunner) KillSession(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "kill-session", "-t", "="+name); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to kill tmux session %q", name), err)
	}
	return nil
}

func (r *ExecRunner) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	out, err := r.run(ctx, "capture-pane", "-t", "="+name, "-p", "-S", fmt.Sprintf("-%d", lines))
	if err != nil {
		return "", cerr.NewError(cerr.Internal, fmt.Sprintf("failed to capture output of session %q", name), err)
	}
	return out, nil
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName makes an arbitrary identifier safe as a tmux session
// name. Names longer than 64 characters are truncated.
func SanitizeName(name string) string {
	sanitized := unsafeNameRe.ReplaceAllString(name, "-")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

// Candidates lists the session names an identifier may resolve to.
// Launched sessions carry an orch- prefix but callers often pass the
// bare id back.
func Candidates(id string) []string {
	sanitized := SanitizeName(id)
	seen := map[string]bool{}
	var out []string
	for _, c := range []string{sanitized, "orch-" + id, "orch-" + sanitized, id} {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Resolve returns the first candidate name that is a live session.
func Resolve(ctx context.Context, r Runner, id string) (string, bool) {
	for _, c := range Candidates(id) {
		if r.HasSession(ctx, c) {
			return c, true
		}
	}
	return "", false
}
