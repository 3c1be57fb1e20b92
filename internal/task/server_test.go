package task_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchv2/dashboard/internal/task"
	taskrepo "github.com/orchv2/dashboard/internal/task/repositoryimpl"
	"github.com/orchv2/dashboard/internal/template"
	"github.com/orchv2/dashboard/pkg/cerr"
)

type fakeLauncher struct {
	mu      sync.Mutex
	started []string
	fail    error
}

func (l *fakeLauncher) Start(ctx context.Context, t *task.Task, specPath, modelOverride string) (*task.LaunchInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.started = append(l.started, t.ID)
	model := modelOverride
	if model == "" {
		model = t.Model
	}
	return &task.LaunchInfo{SessionID: task.SessionID(t.ID), Agent: t.Agent, Model: model}, nil
}

type memTemplates struct {
	templates map[string]string
}

func (r *memTemplates) List(ctx context.Context) ([]string, error) {
	var names []string
	for name := range r.templates {
		names = append(names, name)
	}
	return names, nil
}

func (r *memTemplates) Get(ctx context.Context, name string) (string, error) {
	content, ok := r.templates[name]
	if !ok {
		return "", cerr.NewError(cerr.NotFound, "template not found", nil)
	}
	return content, nil
}

type fixture struct {
	repo     *taskrepo.DirRepository
	launcher *fakeLauncher
	router   chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := taskrepo.NewDirRepository(t.TempDir())
	require.NoError(t, err)

	launcher := &fakeLauncher{}
	engine := template.NewEngine(&memTemplates{templates: map[string]string{
		"feature": "# Task: {{TITLE}}\n\n**ID:** {{TASK_ID}}\n**Created:** {{DATE}}\n**Priority:** {{PRIORITY}}\n**Agent:** {{AGENT}}\n**Model:** {{MODEL}}\n**Project:** {{PROJECT}}\n\n---\n\n## Goal\n\n{{GOAL}}\n",
	}})
	srv := task.NewServer(repo, engine, launcher, "~")

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	srv.Routes(r)

	return &fixture{repo: repo, launcher: launcher, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seed(t *testing.T, f *fixture, id, title, agent, priority string) {
	t.Helper()
	raw := task.Serialize(&task.Task{ID: id, Title: title, Agent: agent, Priority: priority, Content: "body\n"})
	require.NoError(t, f.repo.Create(context.Background(), id, raw))
}

func TestQuickCreateAndLaunchLandsOnceInInProgress(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks/quick", map[string]any{
		"title":  "Fix bug",
		"prompt": "Fix the login redirect loop.",
		"agent":  "claude",
		"launch": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "launched", body["status"])
	id := body["task_id"].(string)

	got, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, task.StateInProgress, got.State)

	counts, err := f.repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts[task.StatePending])
	assert.Equal(t, 1, counts[task.StateInProgress])
	assert.Equal(t, []string{id}, f.launcher.started)
}

func TestQuickCreateMissingFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks/quick", map[string]any{"agent": "claude"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.ElementsMatch(t, []any{"title", "prompt"}, body["missing"])
}

func TestQuickCreateDefaults(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks/quick", map[string]any{
		"title":  "Defaults",
		"prompt": "Check defaults.",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "claude", body["agent"])
	assert.Equal(t, "P2", body["priority"])
	assert.Equal(t, "general", body["project"])
	assert.Equal(t, "created", body["status"])

	got, err := f.repo.Get(context.Background(), body["task_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, got.State)
	assert.Contains(t, got.Content, "Check defaults.")
	assert.Contains(t, got.Content, "## Completion Criteria")
}

func TestCreateFromTemplate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks", map[string]any{
		"template": "feature",
		"agent":    "codex",
		"model":    "o3",
		"priority": "1",
		"fields": map[string]string{
			"TITLE": "Add search",
			"GOAL":  "Search the queue",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	id := body["task_id"].(string)

	got, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Add search", got.Title)
	assert.Equal(t, "codex", got.Agent)
	assert.Equal(t, "P1", got.Priority)
	assert.Contains(t, got.Content, "Search the queue")
}

func TestCreateFromTemplateMissingField(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks", map[string]any{
		"template": "feature",
		"fields":   map[string]string{"TITLE": "Add search"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{"GOAL"}, body["missing"])
}

func TestCreateFromTemplateUnknownTemplate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/tasks", map[string]any{
		"template": "nope",
		"fields":   map[string]string{"TITLE": "x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLaunchOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-a", "A", "claude", "P1")
	_, err := f.repo.Move(context.Background(), "task-1-2-3-a", task.StateBlocked)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-a/launch", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	got, err := f.repo.Get(context.Background(), "task-1-2-3-a")
	require.NoError(t, err)
	assert.Equal(t, task.StateBlocked, got.State)
}

func TestLaunchFailureReleasesTask(t *testing.T) {
	f := newFixture(t)
	f.launcher.fail = cerr.NewError(cerr.Unavailable, "tmux exploded", errors.New("boom"))
	seed(t, f, "task-1-2-3-b", "B", "claude", "P1")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-b/launch", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	got, err := f.repo.Get(context.Background(), "task-1-2-3-b")
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, got.State)
}

func TestLaunchNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/tasks/task-ghost/launch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-c", "C", "claude", "P1")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-c/block", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "blocked", body["state"])

	rec = f.do(t, http.MethodPost, "/tasks/task-1-2-3-c/block", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMoveGenericTransition(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-d", "D", "claude", "P1")
	_, err := f.repo.Move(context.Background(), "task-1-2-3-d", task.StateInProgress)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-d/move", map[string]any{"to": "blocked"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "in-progress", body["from"])
	assert.Equal(t, "blocked", body["to"])

	counts, err := f.repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts[task.StateInProgress])
	assert.Equal(t, 1, counts[task.StateBlocked])
}

func TestMoveRejectsNoOp(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-e", "E", "claude", "P1")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-e/move", map[string]any{"to": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMoveRejectsUnknownState(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-f", "F", "claude", "P1")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-f/move", map[string]any{"to": "done"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueGroupsByStateWithNoStoreHeader(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-g", "G", "claude", "P0")
	seed(t, f, "task-1-2-3-h", "H", "codex", "P1")
	_, err := f.repo.Move(context.Background(), "task-1-2-3-h", task.StateCompleted)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))

	body := decode(t, rec)
	pending := body["pending"].([]any)
	completed := body["completed"].([]any)
	require.Len(t, pending, 1)
	require.Len(t, completed, 1)
	assert.Empty(t, body["blocked"])

	item := completed[0].(map[string]any)
	assert.Equal(t, "task-1-2-3-h", item["id"])
	assert.NotZero(t, item["mtime"])
}

func TestGetTaskDetail(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-i", "I", "claude", "P1")

	rec := f.do(t, http.MethodGet, "/tasks/task-1-2-3-i", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "I", body["title"])
	assert.Contains(t, body["content"], "# Task: I")
}

func TestGetTaskDetailSurfacesPurposeAndDuration(t *testing.T) {
	f := newFixture(t)
	raw := task.Serialize(&task.Task{
		ID:       "task-1-2-3-pd",
		Title:    "Scoped",
		Agent:    "claude",
		Priority: "P1",
		Purpose:  "demo prep",
		Duration: "2h",
		Content:  "body\n",
	})
	require.NoError(t, f.repo.Create(context.Background(), "task-1-2-3-pd", raw))

	rec := f.do(t, http.MethodGet, "/tasks/task-1-2-3-pd", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "demo prep", body["purpose"])
	assert.Equal(t, "2h", body["duration"])
}

func TestUpdateTaskContent(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-j", "J", "claude", "P1")

	newContent := "# Task: J2\n\n**ID:** task-1-2-3-j\n\n---\n\nnew body\n"
	rec := f.do(t, http.MethodPut, "/tasks/task-1-2-3-j", map[string]any{"content": newContent})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.repo.Get(context.Background(), "task-1-2-3-j")
	require.NoError(t, err)
	assert.Equal(t, "J2", got.Title)
}

func TestUpdateTaskRequiresContent(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-k", "K", "claude", "P1")

	rec := f.do(t, http.MethodPut, "/tasks/task-1-2-3-k", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-l", "L", "claude", "P1")

	rec := f.do(t, http.MethodDelete, "/tasks/task-1-2-3-l", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["deleted_from"])

	rec = f.do(t, http.MethodDelete, "/tasks/task-1-2-3-l", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPriorityEndpoint(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-m", "M", "claude", "P3")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-m/priority", map[string]any{"priority": "p0"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "P0", body["priority"])

	rec = f.do(t, http.MethodPost, "/tasks/task-1-2-3-m/priority", map[string]any{"priority": "whenever"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateEndpoint(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-n", "N", "claude", "P1")

	rec := f.do(t, http.MethodPost, "/tasks/task-1-2-3-n/duplicate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "task-1-2-3-n", body["original_id"])
	assert.NotEqual(t, "task-1-2-3-n", body["new_task_id"])
	assert.Equal(t, "pending", body["state"])
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "task-1-2-3-o", "O", "claude", "P1")
	seed(t, f, "task-1-2-3-p", "P", "claude", "P1")
	_, err := f.repo.Move(context.Background(), "task-1-2-3-p", task.StateLearning)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["pending"])
	assert.Equal(t, float64(1), body["learning"])
	assert.Equal(t, float64(2), body["total"])
}
