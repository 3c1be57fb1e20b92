package task

import "context"

// LaunchInfo describes the agent session started for a task.
type LaunchInfo struct {
	SessionID string
	Agent     string
	Model     string
}

// Launcher starts an agent session working on a task. specPath is the
// on-disk path of the task file after it has been claimed.
type Launcher interface {
	Start(ctx context.Context, t *Task, specPath, modelOverride string) (*LaunchInfo, error)
}
