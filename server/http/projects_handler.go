package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

// ProjectsHandler is the HTTP handler of project boards and their memberships
type ProjectsHandler struct {
	projectsManager projects.Manager
	agentsManager   agents.Manager
}

// NewProjectsHandler creates a new ProjectsHandler HTTP handler
func NewProjectsHandler(projectsManager projects.Manager, agentsManager agents.Manager) *ProjectsHandler {
	return &ProjectsHandler{
		projectsManager: projectsManager,
		agentsManager:   agentsManager,
	}
}

// CreateProject is HTTP POST handler that creates a project board
func (h *ProjectsHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	var req api.CreateProjectRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	project, err := h.projectsManager.CreateProject(r.Context(), agent.ID, req.Name, req.Description)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toProjectResponse(project))
}

// GetAllProjects is HTTP GET handler that lists every project board
func (h *ProjectsHandler) GetAllProjects(w http.ResponseWriter, r *http.Request) {
	allProjects, err := h.projectsManager.GetAllProjects(r.Context())
	if err != nil {
		util.WriteError(err, w)
		return
	}

	respBody := make([]*api.Project, 0, len(allProjects))
	for _, project := range allProjects {
		respBody = append(respBody, toProjectResponse(project))
	}

	util.WriteJSONObject(w, respBody)
}

// GetProject is HTTP GET handler that returns one project board
func (h *ProjectsHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	project, err := h.projectsManager.GetProject(r.Context(), projectID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toProjectResponse(project))
}

// UpdateProject is HTTP PUT handler that renames a project board
func (h *ProjectsHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	var req api.UpdateProjectRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	project, err := h.projectsManager.UpdateProject(r.Context(), agent.ID, projectID, req.Name, req.Description)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toProjectResponse(project))
}

// DeleteProject is HTTP DELETE handler that removes a project board
func (h *ProjectsHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	err := h.projectsManager.DeleteProject(r.Context(), agent.ID, projectID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

// AddMember is HTTP POST handler that adds an agent to a project
func (h *ProjectsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	var req api.AddMemberRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	member, err := h.projectsManager.AddMember(r.Context(), agent.ID, projectID, req.AgentID, req.Role)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toMemberResponse(member, agentNameIndex(r, h.agentsManager)[member.AgentID]))
}

// GetMembers is HTTP GET handler that lists a project's members
func (h *ProjectsHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	members, err := h.projectsManager.GetMembers(r.Context(), projectID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	names := agentNameIndex(r, h.agentsManager)
	respBody := make([]*api.Member, 0, len(members))
	for _, member := range members {
		respBody = append(respBody, toMemberResponse(member, names[member.AgentID]))
	}

	util.WriteJSONObject(w, respBody)
}

// RemoveMember is HTTP DELETE handler that removes an agent from a project
func (h *ProjectsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}
	agentID := vars["agentId"]
	if len(agentID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid agent ID"), w)
		return
	}

	err := h.projectsManager.RemoveMember(r.Context(), agent.ID, projectID, agentID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

// agentNameIndex resolves agent IDs to names for response enrichment. Lookup
// failures degrade to ID-only responses.
func agentNameIndex(r *http.Request, agentsManager agents.Manager) map[string]string {
	allAgents, err := agentsManager.GetAllAgents(r.Context())
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(allAgents))
	for _, agent := range allAgents {
		names[agent.ID] = agent.Name
	}
	return names
}

func toMemberResponse(member *types.ProjectMember, agentName string) *api.Member {
	return &api.Member{
		ID:        member.ID,
		ProjectID: member.ProjectID,
		AgentID:   member.AgentID,
		AgentName: agentName,
		Role:      member.Role,
		JoinedAt:  member.JoinedAt,
	}
}

func toProjectResponse(project *types.Project) *api.Project {
	return &api.Project{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		CreatedBy:   project.CreatedBy,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}
}
