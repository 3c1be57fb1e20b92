package task

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const (
	idTimeLayout = "20060102-150405"
	maxSlugLen   = 30
)

// NewID builds a task id from the creation time, a short ULID-entropy
// nonce, and a slug of the title. The nonce keeps ids unique even for
// identical titles created within the same second.
func NewID(title string, now time.Time) string {
	nonce := strings.ToLower(ulid.Make().String())
	nonce = nonce[len(nonce)-4:]
	return fmt.Sprintf("task-%s-%s-%s", now.Format(idTimeLayout), nonce, Slugify(title))
}

// SessionID derives the multiplexer session id for a task: the id's
// timestamp and nonce segments, which are unique per task.
func SessionID(taskID string) string {
	parts := strings.Split(taskID, "-")
	if len(parts) >= 4 {
		return strings.Join(parts[:4], "-")
	}
	return taskID
}

// Slugify lowercases the title, keeps letters and digits, collapses
// everything else to single hyphens, and truncates to 30 characters.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if r < 128 {
				b.WriteRune(r)
				lastHyphen = false
			}
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "task"
	}
	return slug
}
