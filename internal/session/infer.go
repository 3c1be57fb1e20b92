package session

import (
	"regexp"
	"strings"
	"time"
)

// Output inference is the last resort when a session never reported a
// status record: classify its recent pane output by pattern matching.
// Precedence: error > done (with a prompt shown) > prompt awaiting
// input > working > stale/idle.

var ansiEscapeRe = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

var errorPatterns = []string{
	"traceback",
	"exception",
	"fatal:",
	"error:",
	"failed",
}

var donePatterns = []string{
	"task complete",
	"task completed",
	"completed end-to-end",
	"done.",
}

var workingPatterns = []string{
	"esc to interrupt",
	"working (",
	"planning ",
	"running job bot",
	"tracking run progress",
	"waiting for background terminal",
}

// demotableWorkingPatterns are working markers that can go stale: when
// an informational prompt follows them and activity has stopped, the
// session is really waiting for input.
var demotableWorkingPatterns = []string{
	"esc to interrupt",
	"working (",
	"planning ",
	"tracking run progress",
}

var backgroundProgressPatterns = []string{
	"waiting for background terminal",
	"tracking run progress",
	"running job bot",
}

var informationalPromptPrefixes = []string{
	"use /",
}

const (
	promptStale             = 15 * time.Second
	backgroundProgressStale = 5 * time.Minute
	idleAfter               = 5 * time.Minute
	promptMarker            = "› " // "›" shown by agent CLIs before their input line
)

func stripANSI(text string) string {
	return ansiEscapeRe.ReplaceAllString(text, "")
}

func isInformationalPrompt(prompt string) bool {
	lowered := strings.ToLower(strings.TrimSpace(prompt))
	if lowered == "" {
		return false
	}
	if lowered == "use /skills to list available skills" || lowered == "implement {feature}" {
		return true
	}
	for _, prefix := range informationalPromptPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

func containsAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// InferStatus classifies a session from its pane output and last
// activity time. lastActivity may be zero when tmux did not report one.
func InferStatus(lines []string, lastActivity, now time.Time) (Status, string) {
	var cleaned []string
	for _, line := range lines {
		c := strings.TrimSpace(stripANSI(line))
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return StatusWorking, "Running"
	}

	recent := cleaned
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	var (
		workingIdx          = -1
		workingLine         string
		nonInfoPromptIdx    = -1
		nonInfoPromptText   string
		infoPromptIdx       = -1
		backgroundCountIdx  = -1
		backgroundCountLine string
	)
	for idx, line := range recent {
		lowered := strings.ToLower(line)
		if containsAny(lowered, workingPatterns) {
			workingIdx = idx
			workingLine = line
		}
		if strings.Contains(lowered, "background terminal running") || strings.Contains(lowered, "background terminals running") {
			backgroundCountIdx = idx
			backgroundCountLine = line
		}
		if strings.HasPrefix(line, promptMarker) {
			prompt := strings.TrimSpace(line[len(promptMarker):])
			if isInformationalPrompt(prompt) {
				infoPromptIdx = idx
			} else {
				nonInfoPromptIdx = idx
				nonInfoPromptText = prompt
			}
		}
	}

	var doneLine string
	for i := len(recent) - 1; i >= 0; i-- {
		lowered := strings.ToLower(recent[i])
		if containsAny(lowered, errorPatterns) {
			return StatusError, truncate(recent[i], 160)
		}
		if doneLine == "" && containsAny(lowered, donePatterns) {
			doneLine = recent[i]
		}
	}
	if doneLine != "" && nonInfoPromptIdx >= 0 {
		return StatusDone, truncate(doneLine, 160)
	}

	if nonInfoPromptIdx >= 0 && (workingIdx < 0 || nonInfoPromptIdx > workingIdx) {
		if nonInfoPromptText != "" {
			return StatusNeedsInput, "Awaiting input: " + truncate(nonInfoPromptText, 140)
		}
		return StatusNeedsInput, "Awaiting input"
	}

	activityAge := time.Duration(-1)
	if !lastActivity.IsZero() {
		activityAge = now.Sub(lastActivity)
	}

	if workingLine != "" {
		loweredWorking := strings.ToLower(workingLine)
		hasBackgroundProgress := false
		for _, line := range recent {
			if containsAny(strings.ToLower(line), backgroundProgressPatterns) {
				hasBackgroundProgress = true
				break
			}
		}
		demotable := containsAny(loweredWorking, demotableWorkingPatterns)

		if infoPromptIdx > workingIdx && demotable && activityAge > promptStale && !hasBackgroundProgress {
			return StatusNeedsInput, "Awaiting input"
		}
		if hasBackgroundProgress && activityAge > backgroundProgressStale && infoPromptIdx > workingIdx {
			return StatusNeedsInput, "Awaiting input"
		}
		if backgroundCountIdx >= workingIdx && backgroundCountIdx >= 0 {
			return StatusWorking, truncate(backgroundCountLine, 160)
		}
		return StatusWorking, truncate(workingLine, 160)
	}

	if infoPromptIdx >= 0 && (lastActivity.IsZero() || activityAge > promptStale) {
		return StatusNeedsInput, "Awaiting input"
	}

	if !lastActivity.IsZero() && activityAge > idleAfter {
		return StatusIdle, "Idle"
	}

	recentText := strings.ToLower(strings.Join(recent, "\n"))
	if strings.Contains(recentText, "waiting") {
		return StatusIdle, "Waiting"
	}

	return StatusWorking, "Running"
}
