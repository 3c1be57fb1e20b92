package template

import (
	"context"
	"regexp"
	"strings"

	"github.com/orchv2/dashboard/pkg/cerr"
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

// Engine resolves templates from a repository and fills their
// placeholders. Placeholder syntax is {{FIELD}} with upper-case names.
type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.repo.List(ctx)
}

// Get returns a template with its parsed field list.
func (e *Engine) Get(ctx context.Context, name string) (*Template, error) {
	content, err := e.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Template{
		Name:    name,
		Content: content,
		Fields:  ParseFields(content),
	}, nil
}

// ParseFields extracts placeholder fields in order of first appearance.
// Auto fields are filled by the system and never required from callers.
func ParseFields(content string) []Field {
	seen := map[string]bool{}
	var fields []Field
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		auto := IsAutoField(name)
		fields = append(fields, Field{
			Name:     name,
			Required: !auto,
			Auto:     auto,
		})
	}
	return fields
}

// Render loads the named template and substitutes both user-supplied
// and system-supplied values. Every required field missing from
// userValues is reported in a single error so the caller sees the full
// list at once.
func (e *Engine) Render(ctx context.Context, name string, userValues, autoValues map[string]string) (string, error) {
	tmpl, err := e.Get(ctx, name)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, f := range tmpl.Fields {
		if f.Auto {
			continue
		}
		if v, ok := userValues[f.Name]; !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return "", cerr.NewMissingFieldsError(missing)
	}
	merged := make(map[string]string, len(autoValues)+len(userValues))
	for k, v := range autoValues {
		merged[k] = v
	}
	for k, v := range userValues {
		merged[k] = v
	}
	return Fill(tmpl.Content, merged), nil
}

// Fill substitutes known placeholders and leaves unknown ones intact.
func Fill(content string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}
