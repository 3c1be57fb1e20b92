package task

import (
	"regexp"
	"strings"
	"time"
)

// State is a task's lifecycle state. It always equals the name of the
// queue directory the task file currently lives in.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in-progress"
	StateBlocked    State = "blocked"
	StateCompleted  State = "completed"
	StateLearning   State = "learning"
)

// States returns all lifecycle states in display order.
func States() []State {
	return []State{StatePending, StateInProgress, StateBlocked, StateCompleted, StateLearning}
}

// ParseState canonicalizes a state string from the wire. Underscores are
// accepted for in-progress because older clients sent them.
func ParseState(raw string) (State, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-") {
	case "pending":
		return StatePending, true
	case "in-progress":
		return StateInProgress, true
	case "blocked":
		return StateBlocked, true
	case "completed":
		return StateCompleted, true
	case "learning":
		return StateLearning, true
	default:
		return "", false
	}
}

// transitions is the allowed-transition table. Every state can reach
// every other state (the operator can always reshuffle the queue); only
// same-state moves are rejected. Launch additionally requires pending,
// enforced by the repository's claim step.
var transitions = map[State][]State{
	StatePending:    {StateInProgress, StateBlocked, StateCompleted, StateLearning},
	StateInProgress: {StatePending, StateBlocked, StateCompleted, StateLearning},
	StateBlocked:    {StatePending, StateInProgress, StateCompleted, StateLearning},
	StateCompleted:  {StatePending, StateInProgress, StateBlocked, StateLearning},
	StateLearning:   {StatePending, StateInProgress, StateBlocked, StateCompleted},
}

func (s State) CanTransitionTo(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Priority is stored as the string found in the task file. Unrecognized
// values are preserved for display; only Rank treats them specially.
type Priority string

const DefaultPriority Priority = "P2"

var (
	priorityTokenRe = regexp.MustCompile(`\bP([0-3])\b`)
	priorityDigitRe = regexp.MustCompile(`\b([0-3])\b`)
)

// NormalizePriority canonicalizes user-supplied priority text to P0..P3.
// It is the single ingress point for priority strings; nothing deeper in
// the stack compares raw input.
func NormalizePriority(raw string, def Priority) Priority {
	text := strings.TrimSpace(raw)
	if text == "" {
		return def
	}
	upper := strings.ToUpper(text)
	switch upper {
	case "P0", "P1", "P2", "P3":
		return Priority(upper)
	}
	if m := priorityTokenRe.FindStringSubmatch(upper); m != nil {
		return Priority("P" + m[1])
	}
	if m := priorityDigitRe.FindStringSubmatch(upper); m != nil {
		return Priority("P" + m[1])
	}
	return def
}

// Rank orders priorities for listing: P0 first, unknown strings last.
// The comparison is case-insensitive so inconsistent casing in stored
// files cannot break ordering.
func (p Priority) Rank() int {
	upper := strings.ToUpper(string(p))
	for i := 0; i <= 3; i++ {
		if strings.Contains(upper, "P"+string(rune('0'+i))) {
			return i
		}
	}
	return 99
}

// TierRank orders learning-bucket tiers T0..T3; unknown tiers sort last.
func TierRank(tier string) int {
	switch strings.ToUpper(strings.TrimSpace(tier)) {
	case "T0":
		return 0
	case "T1":
		return 1
	case "T2":
		return 2
	case "T3":
		return 3
	default:
		return 99
	}
}

// Task is one markdown-backed work unit. State and Modified are derived
// from the file's location and mtime and are not serialized; Raw holds
// the on-disk bytes when the task was read back from storage.
type Task struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	State    State     `json:"state,omitempty"`
	Priority string    `json:"priority"`
	Agent    string    `json:"agent"`
	Model    string    `json:"model,omitempty"`
	Project  string    `json:"project,omitempty"`
	Tier     string    `json:"tier,omitempty"`
	Category string    `json:"category,omitempty"`
	Purpose  string    `json:"purpose,omitempty"`
	Duration string    `json:"duration,omitempty"`
	Created  string    `json:"created,omitempty"`
	Content  string    `json:"-"`
	Modified time.Time `json:"-"`
	Raw      string    `json:"-"`
}
