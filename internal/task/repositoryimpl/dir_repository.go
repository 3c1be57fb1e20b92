package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/orchv2/dashboard/internal/task"
	"github.com/orchv2/dashboard/pkg/cerr"
)

var (
	taskFileRe = regexp.MustCompile(`^task-.*\.md$`)
	priorityRe = regexp.MustCompile(`(\*\*Priority:\*\*[ \t]*)(\S+)`)
	idFieldRe  = regexp.MustCompile(`(\*\*ID:\*\*[ \t]*)(\S+)`)
	createdRe  = regexp.MustCompile(`(\*\*Created:\*\*[ \t]*)(\S+)`)
)

// DirRepository implements task.Repository on a queue root holding one
// directory per lifecycle state. A state transition is a rename of the
// task file between directories; the rename is the atomic commit point,
// so two concurrent movers get exactly one winner and the loser observes
// NotFound.
type DirRepository struct {
	root string
}

func NewDirRepository(root string) (*DirRepository, error) {
	for _, state := range task.States() {
		if err := os.MkdirAll(filepath.Join(root, string(state)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory %s: %w", state, err)
		}
	}
	return &DirRepository{root: root}, nil
}

func (r *DirRepository) Path(state task.State, id string) string {
	return filepath.Join(r.root, string(state), id+".md")
}

func (r *DirRepository) readTask(ctx context.Context, state task.State, id string) (*task.Task, error) {
	path := r.Path(state, id)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.NewError(cerr.NotFound, "task not found", err)
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read task %s: %w", id, err))
	}
	t, err := task.Parse(raw)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "malformed task file", err)
	}
	if t.ID == "" {
		t.ID = id
	}
	if t.Title == "" {
		t.Title = t.ID
	}
	t.State = state
	if info, err := os.Stat(path); err == nil {
		t.Modified = info.ModTime()
	}
	return t, nil
}

func (r *DirRepository) List(ctx context.Context, state task.State) ([]*task.Task, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, string(state)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list %s: %w", state, err))
	}

	var tasks []*task.Task
	for _, entry := range entries {
		if entry.IsDir() || !taskFileRe.MatchString(entry.Name()) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".md")
		t, err := r.readTask(ctx, state, id)
		if err != nil {
			// A malformed file must not take down the whole listing.
			slog.WarnContext(ctx, "skipping unparseable task file", "state", state, "file", entry.Name(), "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	sortTasks(state, tasks)
	return tasks, nil
}

func sortTasks(state task.State, tasks []*task.Task) {
	switch state {
	case task.StateCompleted:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].Modified.After(tasks[j].Modified)
		})
	case task.StateLearning:
		sort.SliceStable(tasks, func(i, j int) bool {
			ri, rj := task.TierRank(tasks[i].Tier), task.TierRank(tasks[j].Tier)
			if ri != rj {
				return ri < rj
			}
			return tasks[i].ID < tasks[j].ID
		})
	default:
		sort.SliceStable(tasks, func(i, j int) bool {
			ri, rj := task.Priority(tasks[i].Priority).Rank(), task.Priority(tasks[j].Priority).Rank()
			if ri != rj {
				return ri < rj
			}
			return tasks[i].ID < tasks[j].ID
		})
	}
}

func (r *DirRepository) Queue(ctx context.Context) (map[task.State][]*task.Task, error) {
	result := make(map[task.State][]*task.Task, len(task.States()))
	for _, state := range task.States() {
		tasks, err := r.List(ctx, state)
		if err != nil {
			return nil, err
		}
		result[state] = tasks
	}
	return result, nil
}

func (r *DirRepository) Counts(ctx context.Context) (map[task.State]int, error) {
	counts := make(map[task.State]int, len(task.States()))
	for _, state := range task.States() {
		entries, err := os.ReadDir(filepath.Join(r.root, string(state)))
		if err != nil {
			if os.IsNotExist(err) {
				counts[state] = 0
				continue
			}
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count %s: %w", state, err))
		}
		n := 0
		for _, entry := range entries {
			if !entry.IsDir() && taskFileRe.MatchString(entry.Name()) {
				n++
			}
		}
		counts[state] = n
	}
	return counts, nil
}

// locate finds the single state directory currently holding the task.
func (r *DirRepository) locate(id string) (task.State, error) {
	for _, state := range task.States() {
		if _, err := os.Stat(r.Path(state, id)); err == nil {
			return state, nil
		}
	}
	return "", cerr.NewError(cerr.NotFound, "task not found", nil)
}

func (r *DirRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	state, err := r.locate(id)
	if err != nil {
		return nil, err
	}
	return r.readTask(ctx, state, id)
}

func (r *DirRepository) Create(ctx context.Context, id string, raw []byte) error {
	if _, err := r.locate(id); err == nil {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return r.writeFile(r.Path(task.StatePending, id), raw)
}

func (r *DirRepository) writeFile(path string, raw []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to write task file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to commit task file: %w", err))
	}
	return nil
}

func (r *DirRepository) Move(ctx context.Context, id string, to task.State) (task.State, error) {
	from, err := r.locate(id)
	if err != nil {
		return "", err
	}
	if from == to {
		return "", cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("task already in %s", to), nil)
	}
	if !from.CanTransitionTo(to) {
		return "", cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("cannot move task from %s to %s", from, to), nil)
	}
	if err := r.MoveFrom(ctx, id, from, to); err != nil {
		return "", err
	}
	return from, nil
}

func (r *DirRepository) MoveFrom(ctx context.Context, id string, from, to task.State) error {
	src := r.Path(from, id)
	dst := r.Path(to, id)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			// Lost the race (or the task was never in `from`). Report the
			// state it is actually in when it still exists somewhere.
			if actual, lerr := r.locate(id); lerr == nil {
				return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("task is in %s, not %s", actual, from), err)
			}
			return cerr.NewError(cerr.NotFound, "task not found", err)
		}
		// The rename failed for another reason; the task must be provably
		// still in its source state before we report the failure.
		if _, serr := os.Stat(src); serr != nil {
			return cerr.NewError(cerr.Internal, "server error",
				fmt.Errorf("move of %s failed and source state is unverifiable: %w", id, err))
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to move task %s: %w", id, err))
	}
	if to == task.StateCompleted {
		// Rename preserves mtime; touch so completed sorting reflects
		// when the task finished, not when it was last edited.
		now := time.Now()
		_ = os.Chtimes(dst, now, now)
	}
	return nil
}

func (r *DirRepository) UpdateRaw(ctx context.Context, id string, raw []byte) (task.State, error) {
	state, err := r.locate(id)
	if err != nil {
		return "", err
	}
	if err := r.writeFile(r.Path(state, id), raw); err != nil {
		return "", err
	}
	return state, nil
}

func (r *DirRepository) SetPriority(ctx context.Context, id string, p task.Priority) error {
	state, err := r.locate(id)
	if err != nil {
		return err
	}
	path := r.Path(state, id)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cerr.NewError(cerr.NotFound, "task not found", err)
		}
		return cerr.NewError(cerr.Internal, "server error", err)
	}
	updated := priorityRe.ReplaceAll(raw, []byte("${1}"+string(p)))
	if string(updated) == string(raw) && !priorityRe.Match(raw) {
		return cerr.NewError(cerr.InvalidArgument, "task file has no priority field", nil)
	}
	return r.writeFile(path, updated)
}

func (r *DirRepository) Duplicate(ctx context.Context, id string) (*task.Task, error) {
	state, err := r.locate(id)
	if err != nil {
		return nil, err
	}
	orig, err := r.readTask(ctx, state, id)
	if err != nil {
		return nil, err
	}
	newID := task.NewID(orig.Title+" (copy)", time.Now())
	raw := []byte(orig.Raw)
	raw = idFieldRe.ReplaceAll(raw, []byte("${1}"+newID))
	raw = createdRe.ReplaceAll(raw, []byte("${1}"+time.Now().Format("2006-01-02")))
	if err := r.writeFile(r.Path(task.StatePending, newID), raw); err != nil {
		return nil, err
	}
	return r.readTask(ctx, task.StatePending, newID)
}

func (r *DirRepository) Delete(ctx context.Context, id string) (task.State, error) {
	state, err := r.locate(id)
	if err != nil {
		return "", err
	}
	if err := os.Remove(r.Path(state, id)); err != nil {
		if os.IsNotExist(err) {
			return "", cerr.NewError(cerr.NotFound, "task not found", err)
		}
		return "", cerr.NewError(cerr.Internal, "server error", err)
	}
	return state, nil
}

var _ task.Repository = (*DirRepository)(nil)
