package task

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orchv2/dashboard/internal/template"
	"github.com/orchv2/dashboard/pkg/cerr"
)

// Server exposes the task queue over HTTP. Template instantiation and
// agent launching are delegated to their own packages.
type Server struct {
	repo       Repository
	templates  *template.Engine
	launcher   Launcher
	workingDir string
	now        func() time.Time
}

func NewServer(repo Repository, templates *template.Engine, launcher Launcher, workingDir string) *Server {
	if workingDir == "" {
		workingDir = "~"
	}
	return &Server{
		repo:       repo,
		templates:  templates,
		launcher:   launcher,
		workingDir: workingDir,
		now:        time.Now,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/queue", s.handleQueue)
	r.Get("/stats", s.handleStats)
	r.Post("/tasks", s.handleCreate)
	r.Post("/tasks/quick", s.handleQuickCreate)
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", s.handleGet)
		r.Put("/", s.handleUpdate)
		r.Delete("/", s.handleDelete)
		r.Post("/launch", s.handleLaunch)
		r.Post("/block", s.handleBlock)
		r.Post("/move", s.handleMove)
		r.Post("/priority", s.handleSetPriority)
		r.Post("/duplicate", s.handleDuplicate)
	})
}

type queueTask struct {
	*Task
	// Mtime supports time-based sorting of completed tasks in clients.
	Mtime float64 `json:"mtime,omitempty"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queue, err := s.repo.Queue(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	result := map[State][]queueTask{}
	for _, state := range States() {
		items := []queueTask{}
		for _, t := range queue[state] {
			item := queueTask{Task: t}
			if state == StateCompleted {
				item.Mtime = float64(t.Modified.Unix())
			}
			items = append(items, item)
		}
		result[state] = items
	}
	// The dashboard polls this endpoint every few seconds.
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	cerr.SetJSONResponse(ctx, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	stats := map[string]int{}
	total := 0
	for _, state := range States() {
		stats[string(state)] = counts[state]
		total += counts[state]
	}
	stats["total"] = total
	cerr.SetJSONResponse(ctx, stats)
}

type taskDetailResponse struct {
	*Task
	Content string `json:"content"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.repo.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskDetailResponse{Task: t, Content: t.Raw})
}

type createRequest struct {
	Template      string            `json:"template"`
	Fields        map[string]string `json:"fields"`
	Agent         string            `json:"agent"`
	Model         string            `json:"model"`
	Priority      string            `json:"priority"`
	Project       string            `json:"project"`
	WorkingDir    string            `json:"working_dir"`
	CommitMessage string            `json:"commit_message"`
	Launch        bool              `json:"launch"`
}

type createResponse struct {
	Success  bool            `json:"success"`
	TaskID   string          `json:"task_id"`
	SpecPath string          `json:"spec_path"`
	Created  bool            `json:"created"`
	Launch   *launchResponse `json:"launch,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}
	if req.Template == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "template is required", nil)
		return
	}
	title := req.Fields["TITLE"]
	if title == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "TITLE is required to generate the task id", nil)
		return
	}

	now := s.now()
	id := NewID(title, now)
	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = s.workingDir
	}
	autoValues := map[string]string{
		"TASK_ID":        id,
		"DATE":           now.Format("2006-01-02"),
		"AGENT":          req.Agent,
		"MODEL":          req.Model,
		"PRIORITY":       string(NormalizePriority(req.Priority, DefaultPriority)),
		"PROJECT":        req.Project,
		"SESSION_ID":     SessionID(id),
		"WORKING_DIR":    workingDir,
		"COMMIT_MESSAGE": req.CommitMessage,
	}

	filled, err := s.templates.Render(ctx, req.Template, req.Fields, autoValues)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.Create(ctx, id, []byte(filled)); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	resp := createResponse{Success: true, TaskID: id, SpecPath: s.repo.Path(StatePending, id), Created: true}
	if req.Launch {
		launch, err := s.launch(ctx, id, "")
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		resp.Launch = launch
		resp.SpecPath = s.repo.Path(StateInProgress, id)
	}
	cerr.SetJSONResponse(ctx, resp)
}

type quickCreateRequest struct {
	Title      string `json:"title"`
	Prompt     string `json:"prompt"`
	Agent      string `json:"agent"`
	Model      string `json:"model"`
	Priority   string `json:"priority"`
	Project    string `json:"project"`
	WorkingDir string `json:"working_dir"`
	Launch     bool   `json:"launch"`
}

type quickCreateResponse struct {
	Success  bool            `json:"success"`
	TaskID   string          `json:"task_id"`
	Title    string          `json:"title"`
	Agent    string          `json:"agent"`
	Model    string          `json:"model"`
	Priority string          `json:"priority"`
	Project  string          `json:"project"`
	SpecPath string          `json:"spec_path"`
	Status   string          `json:"status"`
	Launch   *launchResponse `json:"launch,omitempty"`
}

const quickTaskBody = `## Objective

%s

---

## Completion Criteria

- Task objective is complete
- Changes committed with git proof (if code changes)
`

func (s *Server) handleQuickCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req quickCreateRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}

	var missing []string
	if trimmed(req.Title) == "" {
		missing = append(missing, "title")
	}
	if trimmed(req.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		cerr.SetJSONError(ctx, cerr.NewMissingFieldsError(missing))
		return
	}

	agent := trimmed(req.Agent)
	if agent == "" {
		agent = "claude"
	}
	project := trimmed(req.Project)
	if project == "" {
		project = "general"
	}

	now := s.now()
	t := &Task{
		ID:       NewID(trimmed(req.Title), now),
		Title:    trimmed(req.Title),
		Created:  now.Format("2006-01-02"),
		Priority: string(NormalizePriority(req.Priority, DefaultPriority)),
		Agent:    agent,
		Model:    trimmed(req.Model),
		Project:  project,
	}
	t.Content = fmt.Sprintf(quickTaskBody, trimmed(req.Prompt))

	if err := s.repo.Create(ctx, t.ID, Serialize(t)); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	resp := quickCreateResponse{
		Success:  true,
		TaskID:   t.ID,
		Title:    t.Title,
		Agent:    t.Agent,
		Model:    t.Model,
		Priority: t.Priority,
		Project:  t.Project,
		SpecPath: s.repo.Path(StatePending, t.ID),
		Status:   "created",
	}
	if req.Launch {
		launch, err := s.launch(ctx, t.ID, "")
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		resp.Launch = launch
		resp.Status = "launched"
		resp.SpecPath = s.repo.Path(StateInProgress, t.ID)
	}
	cerr.SetJSONResponse(ctx, resp)
}

type updateRequest struct {
	Content *string `json:"content"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	State   State  `json:"state"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	var req updateRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}
	if req.Content == nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "content is required", nil)
		return
	}
	state, err := s.repo.UpdateRaw(ctx, id, []byte(*req.Content))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, updateResponse{Success: true, TaskID: id, State: state})
}

type deleteResponse struct {
	Success     bool   `json:"success"`
	TaskID      string `json:"task_id"`
	DeletedFrom State  `json:"deleted_from"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	state, err := s.repo.Delete(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, deleteResponse{Success: true, TaskID: id, DeletedFrom: state})
}

type launchRequest struct {
	Model string `json:"model"`
}

type launchResponse struct {
	Success   bool   `json:"success"`
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	Model     string `json:"model"`
	Status    string `json:"status"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	var req launchRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}
	resp, err := s.launch(ctx, id, trimmed(req.Model))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, resp)
}

// launch claims a pending task, starts its agent session, and releases
// the claim when the start fails. The rename-based claim guarantees a
// single winner under concurrent launch requests, and a failed launch
// leaves the task back in pending.
func (s *Server) launch(ctx context.Context, id, modelOverride string) (*launchResponse, error) {
	if err := s.repo.MoveFrom(ctx, id, StatePending, StateInProgress); err != nil {
		return nil, err
	}

	t, err := s.repo.Get(ctx, id)
	if err == nil && t.Agent == "" {
		err = cerr.NewError(cerr.InvalidArgument, "task has no agent assigned", nil)
	}
	var info *LaunchInfo
	if err == nil {
		info, err = s.launcher.Start(ctx, t, s.repo.Path(StateInProgress, id), modelOverride)
	}
	if err != nil {
		if rerr := s.repo.MoveFrom(ctx, id, StateInProgress, StatePending); rerr != nil {
			slog.ErrorContext(ctx, "failed to release claimed task after launch failure",
				slog.String("task_id", id), slog.Any("error", rerr))
		}
		return nil, err
	}

	return &launchResponse{
		Success:   true,
		TaskID:    id,
		SessionID: info.SessionID,
		Agent:     info.Agent,
		Model:     info.Model,
		Status:    "launched",
	}, nil
}

type blockResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	State   State  `json:"state"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	if err := s.repo.MoveFrom(ctx, id, StatePending, StateBlocked); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, blockResponse{Success: true, TaskID: id, State: StateBlocked})
}

type moveRequest struct {
	To string `json:"to"`
}

type moveResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	From    State  `json:"from"`
	To      State  `json:"to"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	var req moveRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}
	to, ok := ParseState(req.To)
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "target state must be one of pending, in-progress, blocked, completed, learning", nil)
		return
	}
	from, err := s.repo.Move(ctx, id, to)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, moveResponse{Success: true, TaskID: id, From: from, To: to})
}

type setPriorityRequest struct {
	Priority string `json:"priority"`
}

type setPriorityResponse struct {
	Success  bool   `json:"success"`
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	var req setPriorityRequest
	if !decodeJSON(ctx, r, &req) {
		return
	}
	p := NormalizePriority(req.Priority, "")
	if p == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "priority is required (P0, P1, P2, or P3)", nil)
		return
	}
	if err := s.repo.SetPriority(ctx, id, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, setPriorityResponse{Success: true, TaskID: id, Priority: string(p)})
}

type duplicateResponse struct {
	Success    bool   `json:"success"`
	OriginalID string `json:"original_id"`
	NewTaskID  string `json:"new_task_id"`
	State      State  `json:"state"`
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	dup, err := s.repo.Duplicate(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, duplicateResponse{
		Success:    true,
		OriginalID: id,
		NewTaskID:  dup.ID,
		State:      StatePending,
	})
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

// decodeJSON fills req from the body, tolerating an empty body. A
// malformed body deposits an InvalidArgument error and reports false.
func decodeJSON(ctx context.Context, r *http.Request, req any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(req)
	if err == nil || err == io.EOF {
		return true
	}
	cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "request body must be a JSON object", err)
	return false
}
