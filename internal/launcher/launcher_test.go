package launcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchv2/dashboard/internal/agent"
	"github.com/orchv2/dashboard/internal/task"
	"github.com/orchv2/dashboard/internal/tmux"
	"github.com/orchv2/dashboard/pkg/cerr"
)

func TestBuildCommandCodex(t *testing.T) {
	cmd, err := BuildCommand("codex", "o3", "/tmp/spec.md", "~/work")
	require.NoError(t, err)

	assert.Contains(t, cmd, "cd ~/work && ")
	assert.Contains(t, cmd, "codex --dangerously-bypass-approvals-and-sandbox -m o3 ")
	assert.Contains(t, cmd, "Pick up task: /tmp/spec.md")
	assert.Contains(t, cmd, "commit changes with git proof")
}

func TestBuildCommandClaude(t *testing.T) {
	cmd, err := BuildCommand("claude", "claude-sonnet-4-20250514", "/tmp/spec.md", "~")
	require.NoError(t, err)

	assert.Contains(t, cmd, "claude --model claude-sonnet-4-20250514 --permission-mode acceptEdits -p ")
}

func TestBuildCommandGemini(t *testing.T) {
	cmd, err := BuildCommand("gemini", "gemini-2.5-pro", "/tmp/spec.md", "~")
	require.NoError(t, err)
	assert.Contains(t, cmd, "GEMINI_API_KEY=$GEMINI_API_KEY gemini -m gemini-2.5-pro --yolo --prompt ")

	cmd, err = BuildCommand("gemini", "", "/tmp/spec.md", "~")
	require.NoError(t, err)
	assert.Contains(t, cmd, "gemini --yolo --prompt ")
	assert.NotContains(t, cmd, "-m ")
}

func TestBuildCommandHuman(t *testing.T) {
	cmd, err := BuildCommand("human", "", "/tmp/spec.md", "~")
	require.NoError(t, err)
	assert.Contains(t, cmd, "cat /tmp/spec.md && bash")
	assert.Contains(t, cmd, "Human task:")
}

func TestBuildCommandQuotesPrompt(t *testing.T) {
	cmd, err := BuildCommand("claude", "m", "/tmp/spec with space.md", "~")
	require.NoError(t, err)
	// The prompt argument must survive the shell as a single word.
	assert.Contains(t, cmd, "'Pick up task: /tmp/spec with space.md")
}

func TestBuildCommandUnknownAgent(t *testing.T) {
	_, err := BuildCommand("hal9000", "m", "/tmp/spec.md", "~")
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

type recordingRunner struct {
	name    string
	command string
}

func (r *recordingRunner) ListSessions(ctx context.Context) ([]tmux.Session, error) { return nil, nil }
func (r *recordingRunner) HasSession(ctx context.Context, name string) bool         { return false }
func (r *recordingRunner) KillSession(ctx context.Context, name string) error       { return nil }
func (r *recordingRunner) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	return "", nil
}

func (r *recordingRunner) NewSession(ctx context.Context, name, workingDir, command string) error {
	r.name = name
	r.command = command
	return nil
}

func testCatalog(t *testing.T) *agent.Catalog {
	t.Helper()
	catalog, err := agent.LoadCatalog("")
	require.NoError(t, err)
	return catalog
}

func TestStartNamesSessionAfterTask(t *testing.T) {
	runner := &recordingRunner{}
	l := New(runner, testCatalog(t), "~")

	info, err := l.Start(context.Background(), &task.Task{
		ID:    "task-20260115-093000-ab12-fix-bug",
		Agent: "claude",
		Model: "claude-sonnet-4-20250514",
	}, "/queue/in-progress/task-20260115-093000-ab12-fix-bug.md", "")
	require.NoError(t, err)

	assert.Equal(t, "task-20260115-093000-ab12", info.SessionID)
	assert.Equal(t, "task-20260115-093000-ab12", runner.name)
	assert.Contains(t, runner.command, "claude --model claude-sonnet-4-20250514")
}

func TestStartModelPrecedence(t *testing.T) {
	runner := &recordingRunner{}
	l := New(runner, testCatalog(t), "~")
	base := &task.Task{ID: "task-1-2-3-x", Agent: "codex", Model: "gpt-5"}

	info, err := l.Start(context.Background(), base, "/spec.md", "o4-mini")
	require.NoError(t, err)
	assert.Equal(t, "o4-mini", info.Model)

	info, err = l.Start(context.Background(), base, "/spec.md", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", info.Model)

	info, err = l.Start(context.Background(), &task.Task{ID: "task-1-2-3-y", Agent: "codex"}, "/spec.md", "")
	require.NoError(t, err)
	assert.Equal(t, "o3", info.Model)
}

func TestStartRequiresAgent(t *testing.T) {
	l := New(&recordingRunner{}, testCatalog(t), "~")
	_, err := l.Start(context.Background(), &task.Task{ID: "task-1-2-3-z"}, "/spec.md", "")
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}
