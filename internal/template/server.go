package template

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orchv2/dashboard/pkg/cerr"
)

type Server struct {
	engine *Engine
}

func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/templates", s.handleList)
	r.Get("/templates/{templateName}", s.handleGet)
}

type templateSummary struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type listResponse struct {
	Templates []templateSummary `json:"templates"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := s.engine.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := listResponse{Templates: []templateSummary{}}
	for _, name := range names {
		resp.Templates = append(resp.Templates, templateSummary{
			Name: name,
			Path: name + ".md",
		})
	}
	cerr.SetJSONResponse(ctx, resp)
}

type getResponse struct {
	Name    string  `json:"name"`
	Content string  `json:"content"`
	Fields  []Field `json:"fields"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "templateName")
	tmpl, err := s.engine.Get(ctx, name)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	fields := tmpl.Fields
	if fields == nil {
		fields = []Field{}
	}
	cerr.SetJSONResponse(ctx, getResponse{
		Name:    tmpl.Name,
		Content: tmpl.Content,
		Fields:  fields,
	})
}
