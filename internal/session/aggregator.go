package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/orchv2/dashboard/internal/status"
	"github.com/orchv2/dashboard/internal/tmux"
	"github.com/orchv2/dashboard/pkg/cerr"
)

const orchPrefix = "orch-"

// StatusSource provides self-reported session status records.
type StatusSource interface {
	FetchAll(ctx context.Context) (map[string]status.Record, bool)
	Delete(ctx context.Context, sessionID string) error
}

// Aggregator merges the two views of agent sessions: the multiplexer's
// process list, which is authoritative for existence, and the status
// store's self-reported records. A status record without a live process
// is never surfaced.
type Aggregator struct {
	runner tmux.Runner
	source StatusSource
	now    func() time.Time
}

func NewAggregator(runner tmux.Runner, source StatusSource) *Aggregator {
	return &Aggregator{runner: runner, source: source, now: time.Now}
}

const previewCaptureLines = 120

// List returns every live session with its aggregated status. The bool
// result reports whether any status source answered; when it is false
// the sessions are still returned with inferred statuses.
func (a *Aggregator) List(ctx context.Context) ([]Session, bool, error) {
	tmuxSessions, err := a.runner.ListSessions(ctx)
	if err != nil {
		return nil, false, err
	}
	records, reachable := a.source.FetchAll(ctx)

	sessions := make([]Session, 0, len(tmuxSessions))
	for _, ts := range tmuxSessions {
		id := strings.TrimPrefix(ts.Name, orchPrefix)

		var captured []string
		var preview []string
		if out, err := a.runner.CapturePane(ctx, ts.Name, previewCaptureLines); err == nil {
			for _, line := range strings.Split(out, "\n") {
				if strings.TrimSpace(line) != "" {
					captured = append(captured, line)
				}
			}
			if len(captured) > 80 {
				captured = captured[len(captured)-80:]
			}
			if n := len(captured); n > 0 {
				preview = captured[max(0, n-3):]
			}
		}

		rec := records[id]
		st, known := NormalizeStatus(rec.State)
		message := strings.TrimSpace(rec.Message)
		if !known {
			inferred, inferredMessage := InferStatus(captured, ts.Activity, a.now())
			st = inferred
			if message == "" {
				message = inferredMessage
			}
		}
		if message == "" {
			message = "Running"
		}

		sessions = append(sessions, Session{
			ID:            id,
			AgentType:     DetectAgentType(id),
			Status:        st,
			Message:       message,
			Progress:      rec.Progress,
			UpdatedAt:     rec.UpdatedAt,
			OutputPreview: preview,
		})
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, reachable, nil
}

// Kill terminates one session, resolving the id against the candidate
// tmux names, then deletes its status record best-effort.
func (a *Aggregator) Kill(ctx context.Context, id string) error {
	name, ok := tmux.Resolve(ctx, a.runner, id)
	if !ok {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("session %q not found", id), nil)
	}
	if err := a.runner.KillSession(ctx, name); err != nil {
		return err
	}
	if err := a.source.Delete(ctx, id); err != nil {
		slog.DebugContext(ctx, "failed to delete status record after kill",
			slog.String("session_id", id), slog.Any("error", err))
	}
	return nil
}

// KillAll terminates every live session in parallel and reports which
// ids were killed and which failed.
func (a *Aggregator) KillAll(ctx context.Context) (killed []string, errs []string, err error) {
	tmuxSessions, err := a.runner.ListSessions(ctx)
	if err != nil {
		return nil, nil, err
	}

	type result struct {
		id  string
		err error
	}
	results := make([]result, len(tmuxSessions))
	p := pool.New().WithContext(ctx)
	for i, ts := range tmuxSessions {
		i, id := i, strings.TrimPrefix(ts.Name, orchPrefix)
		p.Go(func(ctx context.Context) error {
			results[i] = result{id: id, err: a.Kill(ctx, id)}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}

	killed = []string{}
	errs = []string{}
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.id, r.err))
			continue
		}
		killed = append(killed, r.id)
	}
	return killed, errs, nil
}

// Output captures a session's recent pane output. lines is clamped to
// [10, 500].
func (a *Aggregator) Output(ctx context.Context, id string, lines int) (string, int, error) {
	lines = min(max(lines, 10), 500)
	name, ok := tmux.Resolve(ctx, a.runner, id)
	if !ok {
		return "", lines, cerr.NewError(cerr.NotFound, fmt.Sprintf("session %q not found", id), nil)
	}
	out, err := a.runner.CapturePane(ctx, name, lines)
	if err != nil {
		return "", lines, err
	}
	return out, lines, nil
}

// AttachCommand returns the command a user runs to attach a terminal
// to the session. Unresolvable ids still produce a command built from
// the sanitized name.
func (a *Aggregator) AttachCommand(ctx context.Context, id string) string {
	name, ok := tmux.Resolve(ctx, a.runner, id)
	if !ok {
		name = tmux.SanitizeName(id)
	}
	return "tmux attach -t " + name
}
