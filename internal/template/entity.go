package template

// Field is a placeholder slot inside a template. Auto fields are filled
// by the server at create time and are never required from callers.
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Auto     bool   `json:"auto"`
}

type Template struct {
	Name    string
	Content string
	Fields  []Field
}

// autoFields are placeholders the system resolves itself.
var autoFields = map[string]bool{
	"TASK_ID":        true,
	"DATE":           true,
	"AGENT":          true,
	"MODEL":          true,
	"PRIORITY":       true,
	"PROJECT":        true,
	"SESSION_ID":     true,
	"WORKING_DIR":    true,
	"COMMIT_MESSAGE": true,
}

func IsAutoField(name string) bool {
	return autoFields[name]
}
