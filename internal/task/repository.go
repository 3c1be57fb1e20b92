package task

import "context"

// Repository owns the on-disk queue: one directory per lifecycle state,
// one markdown file per task. There is no in-memory index; every call
// re-reads the filesystem so the staleness window is one request, not
// one poll interval.
type Repository interface {
	// List returns the tasks in one state, sorted for display: priority
	// rank then id for most states, mtime (newest first) for completed,
	// tier rank then id for learning.
	List(ctx context.Context, state State) ([]*Task, error)
	// Queue lists all five states in one call.
	Queue(ctx context.Context) (map[State][]*Task, error)
	Counts(ctx context.Context) (map[State]int, error)
	Get(ctx context.Context, id string) (*Task, error)
	// Create writes a new task file into pending. The id must be fresh.
	Create(ctx context.Context, id string, raw []byte) error
	// Move relocates a task to another state via an atomic rename and
	// returns the state it came from. Same-state moves are rejected.
	Move(ctx context.Context, id string, to State) (State, error)
	// MoveFrom relocates a task with an explicit expected source state;
	// a task not in that state fails rather than moving. Used to claim a
	// pending task for launch and to release it when the launch fails.
	MoveFrom(ctx context.Context, id string, from, to State) error
	// UpdateRaw replaces a task file's content in place and returns the
	// state the task was found in.
	UpdateRaw(ctx context.Context, id string, raw []byte) (State, error)
	SetPriority(ctx context.Context, id string, p Priority) error
	// Duplicate copies a task into pending under a fresh id.
	Duplicate(ctx context.Context, id string) (*Task, error)
	Delete(ctx context.Context, id string) (State, error)
	// Path reports where a task file lives for a given state.
	Path(state State, id string) string
}
