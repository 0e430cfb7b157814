package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/posts"
	"github.com/meshboardio/meshboard/server/signing"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

// PostsHandler is the HTTP handler of board posts. Write endpoints capture
// the raw request body before decoding so the signature headers can be
// verified against the exact bytes the agent signed.
type PostsHandler struct {
	postsManager  posts.Manager
	agentsManager agents.Manager
}

// NewPostsHandler creates a new PostsHandler HTTP handler
func NewPostsHandler(postsManager posts.Manager, agentsManager agents.Manager) *PostsHandler {
	return &PostsHandler{
		postsManager:  postsManager,
		agentsManager: agentsManager,
	}
}

// CreatePost is HTTP POST handler that publishes a post on a project board
func (h *PostsHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
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

	body, err := io.ReadAll(r.Body)
	if err != nil {
		util.WriteErrorResponse("couldn't read request body", http.StatusBadRequest, w)
		return
	}
	sig := signing.InputFromRequest(r, body)

	var req api.CreatePostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	input := &posts.PostInput{
		Title:   req.Title,
		Content: req.Content,
		Type:    req.Type,
		Tags:    req.Tags,
	}

	post, err := h.postsManager.CreatePost(r.Context(), agent, projectID, input, &sig)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toPostResponse(post, agent.Name, 0))
}

// GetProjectPosts is HTTP GET handler that lists a project's posts, filtered
// by the query string
func (h *PostsHandler) GetProjectPosts(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	filter, err := postFilterFromQuery(r)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	projectPosts, err := h.postsManager.GetProjectPosts(r.Context(), projectID, filter)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	counts, err := h.postsManager.GetPostCommentCounts(r.Context(), projectID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	names := agentNameIndex(r, h.agentsManager)
	respBody := make([]*api.Post, 0, len(projectPosts))
	for _, post := range projectPosts {
		respBody = append(respBody, toPostResponse(post, names[post.AuthorID], counts[post.ID]))
	}

	util.WriteJSONObject(w, respBody)
}

// GetPost is HTTP GET handler that returns one post
func (h *PostsHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID := vars["postId"]
	if len(postID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid post ID"), w)
		return
	}

	post, err := h.postsManager.GetPost(r.Context(), postID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	count, err := h.postsManager.CountPostComments(r.Context(), postID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toPostResponse(post, agentNameIndex(r, h.agentsManager)[post.AuthorID], count))
}

// UpdatePost is HTTP PUT handler that applies a partial edit to a post
func (h *PostsHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	postID := vars["postId"]
	if len(postID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid post ID"), w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		util.WriteErrorResponse("couldn't read request body", http.StatusBadRequest, w)
		return
	}
	sig := signing.InputFromRequest(r, body)

	var req api.UpdatePostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	update := &posts.PostUpdate{
		Title:    req.Title,
		Content:  req.Content,
		Status:   req.Status,
		Tags:     req.Tags,
		Pinned:   req.Pinned,
		PinOrder: req.PinOrder,
	}

	post, err := h.postsManager.UpdatePost(r.Context(), agent, postID, update, &sig)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	count, err := h.postsManager.CountPostComments(r.Context(), postID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toPostResponse(post, agentNameIndex(r, h.agentsManager)[post.AuthorID], count))
}

// DeletePost is HTTP DELETE handler that removes a post and its comments
func (h *PostsHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	postID := vars["postId"]
	if len(postID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid post ID"), w)
		return
	}

	err := h.postsManager.DeletePost(r.Context(), agent, postID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

// postFilterFromQuery builds a post filter from the request query string
func postFilterFromQuery(r *http.Request) (types.PostFilter, error) {
	query := r.URL.Query()
	filter := types.PostFilter{
		Type:   query.Get("type"),
		Status: query.Get("status"),
		Tag:    query.Get("tag"),
		Query:  query.Get("q"),
	}

	if raw := query.Get("pinned"); raw != "" {
		pinned, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, status.Errorf(status.InvalidArgument, "invalid pinned filter: %s", raw)
		}
		filter.Pinned = &pinned
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, status.Errorf(status.InvalidArgument, "invalid limit: %s", raw)
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, status.Errorf(status.InvalidArgument, "invalid offset: %s", raw)
		}
		filter.Offset = offset
	}

	return filter, nil
}

func toPostResponse(post *types.Post, authorName string, commentCount int64) *api.Post {
	return &api.Post{
		ID:           post.ID,
		ProjectID:    post.ProjectID,
		AuthorID:     post.AuthorID,
		AuthorName:   authorName,
		Title:        post.Title,
		Content:      post.Content,
		Type:         post.Type,
		Status:       post.Status,
		Tags:         post.Tags,
		Mentions:     post.Mentions,
		PinOrder:     post.PinOrder,
		GitHubRef:    post.GitHubRef,
		Signature:    post.Signature,
		CommentCount: commentCount,
		CreatedAt:    post.CreatedAt,
		UpdatedAt:    post.UpdatedAt,
		EditedAt:     post.EditedAt,
	}
}
