package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orchv2/dashboard/pkg/cerr"
)

type Server struct {
	catalog *Catalog
}

func NewServer(catalog *Catalog) *Server {
	return &Server{catalog: catalog}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/agents", s.handleList)
}

type listResponse struct {
	// Agents keeps the historical agent -> models mapping shape.
	Agents    map[string][]string `json:"agents"`
	AgentList []Agent             `json:"agent_list"`
	Defaults  map[string]string   `json:"defaults"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resp := listResponse{
		Agents:    map[string][]string{},
		AgentList: s.catalog.Agents(),
		Defaults:  map[string]string{},
	}
	for _, a := range s.catalog.Agents() {
		resp.Agents[a.ID] = a.Models
		resp.Defaults[a.ID] = a.Default
	}
	cerr.SetJSONResponse(r.Context(), resp)
}
