package mockapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wolfeidau/fitout/internal/store"
)

// Project is the sample protected resource.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type projectList struct {
	mu       sync.Mutex
	projects []Project
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.roles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) {
			writeError(w, http.StatusNotFound, "", "Role not found")
			return
		}
		s.logger.Error().Err(err).Msg("failed to load role")
		writeError(w, http.StatusInternalServerError, "", "Failed to load role")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	a := authFromContext(r.Context())

	s.projects.mu.Lock()
	out := make([]Project, 0, len(s.projects.projects))
	for _, p := range s.projects.projects {
		if a.account.User.IsAdmin() || p.OwnerID == a.account.User.ID {
			out = append(out, p)
		}
	}
	s.projects.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	a := authFromContext(r.Context())

	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "Name is required")
		return
	}

	p := Project{ID: newID(), Name: req.Name, OwnerID: a.account.User.ID, CreatedAt: time.Now().UTC()}

	s.projects.mu.Lock()
	s.projects.projects = append(s.projects.projects, p)
	s.projects.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}
