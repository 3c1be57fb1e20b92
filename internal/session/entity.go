package session

import "strings"

// Status is the dashboard-facing session state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusWorking    Status = "working"
	StatusNeedsInput Status = "needs_input"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// NormalizeStatus canonicalizes a reported state string. Legacy aliases
// map onto the five statuses; anything unrecognized returns false so the
// caller can fall back to output inference.
func NormalizeStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "idle":
		return StatusIdle, true
	case "working", "running", "in_progress", "in-progress":
		return StatusWorking, true
	case "needs_input", "blocked":
		return StatusNeedsInput, true
	case "done", "complete", "completed":
		return StatusDone, true
	case "error", "failed":
		return StatusError, true
	default:
		return "", false
	}
}

// DetectAgentType guesses the agent kind from the session id prefix.
func DetectAgentType(sessionID string) string {
	lowered := strings.ToLower(sessionID)
	for _, candidate := range []string{"claude", "codex", "gemini", "terminal"} {
		if strings.HasPrefix(lowered, candidate) {
			return candidate
		}
	}
	return "unknown"
}

// Session is one live agent session with its aggregated status.
type Session struct {
	ID            string   `json:"id"`
	AgentType     string   `json:"agent_type"`
	Status        Status   `json:"status"`
	Message       string   `json:"message"`
	Progress      *int     `json:"progress"`
	UpdatedAt     string   `json:"updated_at"`
	OutputPreview []string `json:"output_preview"`
}
