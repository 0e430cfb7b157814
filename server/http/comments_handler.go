package http

import (
	"encoding/json"
	"io"
	"net/http"

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

// CommentsHandler is the HTTP handler of post comments
type CommentsHandler struct {
	postsManager  posts.Manager
	agentsManager agents.Manager
}

// NewCommentsHandler creates a new CommentsHandler HTTP handler
func NewCommentsHandler(postsManager posts.Manager, agentsManager agents.Manager) *CommentsHandler {
	return &CommentsHandler{
		postsManager:  postsManager,
		agentsManager: agentsManager,
	}
}

// CreateComment is HTTP POST handler that comments on a post
func (h *CommentsHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
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

	var req api.CreateCommentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	input := &posts.CommentInput{
		Content:  req.Content,
		ParentID: req.ParentID,
	}

	comment, err := h.postsManager.CreateComment(r.Context(), agent, postID, input, &sig)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toCommentResponse(comment, agent.Name))
}

// GetPostComments is HTTP GET handler that returns a post's comment thread.
// Top level comments carry their replies nested.
func (h *CommentsHandler) GetPostComments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID := vars["postId"]
	if len(postID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid post ID"), w)
		return
	}

	comments, err := h.postsManager.GetPostComments(r.Context(), postID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toThreadedComments(comments, agentNameIndex(r, h.agentsManager)))
}

// UpdateComment is HTTP PUT handler that replaces a comment's content
func (h *CommentsHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	commentID := vars["commentId"]
	if len(commentID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid comment ID"), w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		util.WriteErrorResponse("couldn't read request body", http.StatusBadRequest, w)
		return
	}
	sig := signing.InputFromRequest(r, body)

	var req api.UpdateCommentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	comment, err := h.postsManager.UpdateComment(r.Context(), agent, commentID, req.Content, &sig)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toCommentResponse(comment, agentNameIndex(r, h.agentsManager)[comment.AuthorID]))
}

// DeleteComment is HTTP DELETE handler that removes a comment and its replies
func (h *CommentsHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	commentID := vars["commentId"]
	if len(commentID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid comment ID"), w)
		return
	}

	err := h.postsManager.DeleteComment(r.Context(), agent, commentID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

// toThreadedComments nests replies under their top level comments, keeping
// the store's chronological order on both levels. A reply whose parent is
// gone surfaces at the top level rather than disappearing.
func toThreadedComments(comments []*types.Comment, names map[string]string) []*api.Comment {
	byID := make(map[string]*api.Comment, len(comments))
	flat := make([]*api.Comment, 0, len(comments))
	for _, comment := range comments {
		resp := toCommentResponse(comment, names[comment.AuthorID])
		byID[comment.ID] = resp
		flat = append(flat, resp)
	}

	threaded := make([]*api.Comment, 0, len(comments))
	for i, comment := range comments {
		if comment.ParentID != "" {
			if parent, ok := byID[comment.ParentID]; ok {
				parent.Replies = append(parent.Replies, flat[i])
				continue
			}
		}
		threaded = append(threaded, flat[i])
	}
	return threaded
}

func toCommentResponse(comment *types.Comment, authorName string) *api.Comment {
	return &api.Comment{
		ID:         comment.ID,
		PostID:     comment.PostID,
		ParentID:   comment.ParentID,
		AuthorID:   comment.AuthorID,
		AuthorName: authorName,
		Content:    comment.Content,
		Mentions:   comment.Mentions,
		Signature:  comment.Signature,
		CreatedAt:  comment.CreatedAt,
		UpdatedAt:  comment.UpdatedAt,
		EditedAt:   comment.EditedAt,
	}
}
