package task

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFormat marks a task file the codec cannot make sense of. Listings
// log and skip such files instead of failing the whole call.
var ErrFormat = errors.New("malformed task file")

var (
	titleRe = regexp.MustCompile(`(?m)^# Task:[ \t]*(.+)$`)
	fieldRe = regexp.MustCompile(`(?m)^\*\*([A-Za-z][A-Za-z ]*):\*\*[ \t]*(.*)$`)
)

const bodySeparator = "\n---\n"

// Parse decodes the markdown task format: a "# Task:" title line, a
// block of "**Key:** value" metadata lines, then a "---" separator and
// the freeform body. Keys are matched case-insensitively; unknown keys
// are ignored, never fatal. Each value is exactly one line; a value
// continued on the next line keeps only its first line; the remainder
// stays in the body.
func Parse(raw []byte) (*Task, error) {
	text := string(raw)

	t := &Task{Raw: text}
	if m := titleRe.FindStringSubmatch(text); m != nil {
		t.Title = strings.TrimSpace(m[1])
	}

	fields := map[string]string{}
	for _, m := range fieldRe.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(strings.TrimSpace(m[1]))
		if _, seen := fields[key]; !seen {
			fields[key] = strings.TrimSpace(m[2])
		}
	}
	t.ID = fields["id"]
	t.Created = fields["created"]
	t.Priority = fields["priority"]
	t.Agent = fields["agent"]
	t.Model = fields["model"]
	t.Project = fields["project"]
	t.Tier = fields["tier"]
	t.Category = fields["category"]
	t.Purpose = fields["purpose"]
	t.Duration = fields["estimated duration"]

	if idx := strings.Index(text, bodySeparator); idx >= 0 {
		t.Content = strings.TrimPrefix(text[idx+len(bodySeparator):], "\n")
	}

	if t.Title == "" && t.ID == "" {
		return nil, fmt.Errorf("%w: no title or id marker", ErrFormat)
	}
	return t, nil
}

// Serialize renders a Task back into the markdown format. State and
// Modified are not serialized; they are derived from the file's location
// and mtime. The body is written verbatim so Parse(Serialize(t))
// reproduces every serialized field, Content included.
func Serialize(t *Task) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", t.Title)
	fmt.Fprintf(&b, "**ID:** %s\n", t.ID)
	fmt.Fprintf(&b, "**Created:** %s\n", t.Created)
	fmt.Fprintf(&b, "**Priority:** %s\n", t.Priority)
	fmt.Fprintf(&b, "**Agent:** %s\n", t.Agent)
	fmt.Fprintf(&b, "**Model:** %s\n", t.Model)
	fmt.Fprintf(&b, "**Project:** %s\n", t.Project)
	if t.Tier != "" {
		fmt.Fprintf(&b, "**Tier:** %s\n", t.Tier)
	}
	if t.Category != "" {
		fmt.Fprintf(&b, "**Category:** %s\n", t.Category)
	}
	if t.Purpose != "" {
		fmt.Fprintf(&b, "**Purpose:** %s\n", t.Purpose)
	}
	if t.Duration != "" {
		fmt.Fprintf(&b, "**Estimated Duration:** %s\n", t.Duration)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(t.Content)
	return []byte(b.String())
}
