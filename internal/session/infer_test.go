package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var inferNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestInferStatusEmptyOutput(t *testing.T) {
	st, msg := InferStatus(nil, time.Time{}, inferNow)
	assert.Equal(t, StatusWorking, st)
	assert.Equal(t, "Running", msg)
}

func TestInferStatusError(t *testing.T) {
	lines := []string{
		"doing things",
		"Traceback (most recent call last):",
		"  ValueError: boom",
	}
	st, msg := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusError, st)
	assert.Contains(t, msg, "ValueError")
}

func TestInferStatusErrorBeatsDone(t *testing.T) {
	lines := []string{
		"error: compile failed",
		"Task complete",
		"› type a command",
	}
	st, _ := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusError, st)
}

func TestInferStatusDoneRequiresPrompt(t *testing.T) {
	withPrompt := []string{"Task complete", "› next command"}
	st, msg := InferStatus(withPrompt, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusDone, st)
	assert.Contains(t, msg, "Task complete")

	withoutPrompt := []string{"Task complete"}
	st, _ = InferStatus(withoutPrompt, inferNow.Add(-time.Second), inferNow)
	assert.NotEqual(t, StatusDone, st)
}

func TestInferStatusPromptAwaitsInput(t *testing.T) {
	lines := []string{"some earlier output", "› should I continue?"}
	st, msg := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusNeedsInput, st)
	assert.Contains(t, msg, "should I continue?")
}

func TestInferStatusWorkingMarker(t *testing.T) {
	lines := []string{"Working (12s · esc to interrupt)"}
	st, msg := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusWorking, st)
	assert.Contains(t, msg, "Working")
}

func TestInferStatusWorkingBeatsOlderPrompt(t *testing.T) {
	lines := []string{
		"› do the thing",
		"Working (3s · esc to interrupt)",
	}
	st, _ := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusWorking, st)
}

func TestInferStatusStaleWorkingWithInfoPromptDemotes(t *testing.T) {
	lines := []string{
		"Working (3s · esc to interrupt)",
		"› use /skills to list available skills",
	}
	st, msg := InferStatus(lines, inferNow.Add(-time.Minute), inferNow)
	assert.Equal(t, StatusNeedsInput, st)
	assert.Equal(t, "Awaiting input", msg)
}

func TestInferStatusFreshWorkingWithInfoPromptStaysWorking(t *testing.T) {
	lines := []string{
		"Working (3s · esc to interrupt)",
		"› use /skills to list available skills",
	}
	st, _ := InferStatus(lines, inferNow.Add(-2*time.Second), inferNow)
	assert.Equal(t, StatusWorking, st)
}

func TestInferStatusBackgroundProgressKeepsWorking(t *testing.T) {
	lines := []string{
		"waiting for background terminal",
		"› use /skills to list available skills",
	}
	st, _ := InferStatus(lines, inferNow.Add(-time.Minute), inferNow)
	assert.Equal(t, StatusWorking, st)
}

func TestInferStatusIdleAfterStaleActivity(t *testing.T) {
	lines := []string{"nothing special here"}
	st, msg := InferStatus(lines, inferNow.Add(-10*time.Minute), inferNow)
	assert.Equal(t, StatusIdle, st)
	assert.Equal(t, "Idle", msg)
}

func TestInferStatusStripsANSI(t *testing.T) {
	lines := []string{"\x1b[31merror:\x1b[0m something broke"}
	st, _ := InferStatus(lines, inferNow.Add(-time.Second), inferNow)
	assert.Equal(t, StatusError, st)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{"working", StatusWorking, true},
		{"running", StatusWorking, true},
		{"in_progress", StatusWorking, true},
		{"in-progress", StatusWorking, true},
		{"blocked", StatusNeedsInput, true},
		{"needs_input", StatusNeedsInput, true},
		{"complete", StatusDone, true},
		{"completed", StatusDone, true},
		{"DONE", StatusDone, true},
		{"failed", StatusError, true},
		{"error", StatusError, true},
		{"idle", StatusIdle, true},
		{"", "", false},
		{"mystery", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeStatus(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestDetectAgentType(t *testing.T) {
	assert.Equal(t, "claude", DetectAgentType("claude-main"))
	assert.Equal(t, "codex", DetectAgentType("Codex-2"))
	assert.Equal(t, "gemini", DetectAgentType("gemini"))
	assert.Equal(t, "terminal", DetectAgentType("terminal-1"))
	assert.Equal(t, "unknown", DetectAgentType("task-20260115-093000-ab12"))
}
