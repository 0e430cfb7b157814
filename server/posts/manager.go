// Package posts manages board content: posts, their comment threads and the
// signature record attached to every signed write. Writes verify the request
// signature and refresh the mention snapshot before the transaction, then fan
// out notifications and webhooks after commit.
package posts

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/signing"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/telemetry"
	"github.com/meshboardio/meshboard/server/types"
	"github.com/meshboardio/meshboard/server/webhooks"
)

const (
	maxTitleLength = 200
	maxTagCount    = 10
	maxTagLength   = 50
	// auditBodyPreviewLength caps the body excerpt recorded on the
	// verification audit event
	auditBodyPreviewLength = 120
)

// PostInput carries the client-provided fields of a new post
type PostInput struct {
	Title   string
	Content string
	Type    string
	Tags    []string
}

// PostUpdate carries a partial post edit. Nil fields stay untouched. Pinned
// is sugar on top of PinOrder: true pins behind the last pinned post, false
// unpins. An explicit PinOrder wins over Pinned.
type PostUpdate struct {
	Title    *string
	Content  *string
	Status   *string
	Tags     []string
	Pinned   *bool
	PinOrder *int
}

// CommentInput carries the client-provided fields of a new comment
type CommentInput struct {
	Content  string
	ParentID string
}

// Manager is the board content API. A nil author means the caller holds the
// admin key; creating content always requires a registered agent.
type Manager interface {
	CreatePost(ctx context.Context, author *types.Agent, projectID string, input *PostInput, sig *signing.RequestInput) (*types.Post, error)
	GetProjectPosts(ctx context.Context, projectID string, filter types.PostFilter) ([]*types.Post, error)
	GetPost(ctx context.Context, postID string) (*types.Post, error)
	UpdatePost(ctx context.Context, author *types.Agent, postID string, update *PostUpdate, sig *signing.RequestInput) (*types.Post, error)
	DeletePost(ctx context.Context, author *types.Agent, postID string) error
	CreateComment(ctx context.Context, author *types.Agent, postID string, input *CommentInput, sig *signing.RequestInput) (*types.Comment, error)
	GetPostComments(ctx context.Context, postID string) ([]*types.Comment, error)
	CountPostComments(ctx context.Context, postID string) (int64, error)
	GetPostCommentCounts(ctx context.Context, projectID string) (map[string]int64, error)
	UpdateComment(ctx context.Context, author *types.Agent, commentID, content string, sig *signing.RequestInput) (*types.Comment, error)
	DeleteComment(ctx context.Context, author *types.Agent, commentID string) error
}

type managerImpl struct {
	store           store.Store
	eventStore      activity.Store
	projectsManager projects.Manager
	agentsManager   agents.Manager
	verifier        *signing.RequestVerifier
	notifier        notifications.Manager
	dispatcher      webhooks.Dispatcher
	metrics         telemetry.AppMetrics
}

// NewManager returns a posts manager backed by the given store. metrics may
// be nil.
func NewManager(store store.Store, eventStore activity.Store, projectsManager projects.Manager, agentsManager agents.Manager, notifier notifications.Manager, dispatcher webhooks.Dispatcher, metrics telemetry.AppMetrics) Manager {
	return &managerImpl{
		store:           store,
		eventStore:      eventStore,
		projectsManager: projectsManager,
		agentsManager:   agentsManager,
		verifier:        signing.NewRequestVerifier(),
		notifier:        notifier,
		dispatcher:      dispatcher,
		metrics:         metrics,
	}
}

// CreatePost creates a post on the project board. The author must be a
// member; a post of type plan takes over the plan pin slot from any previous
// plan post.
func (m *managerImpl) CreatePost(ctx context.Context, author *types.Agent, projectID string, input *PostInput, sig *signing.RequestInput) (*types.Post, error) {
	if author == nil {
		return nil, status.Errorf(status.PermissionDenied, "posting requires a registered agent")
	}
	if err := validatePostInput(input); err != nil {
		return nil, err
	}
	postType := input.Type
	if postType == "" {
		postType = types.PostTypeUpdate
	}
	if !types.ValidPostType(postType) {
		return nil, status.Errorf(status.InvalidArgument, "unknown post type: %s", postType)
	}
	tags, err := normalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}

	project, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID)
	if err != nil {
		return nil, err
	}
	if _, err = m.projectsManager.CheckMember(ctx, projectID, author.ID); err != nil {
		return nil, err
	}

	record := m.verifyRequest(ctx, author, projectID, sig)
	names, broadcast := types.ParseMentions(input.Content)
	mentioned, err := m.agentsManager.ResolveMentions(ctx, names)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	post := &types.Post{
		ID:        types.NewPostID(),
		ProjectID: projectID,
		AuthorID:  author.ID,
		Title:     input.Title,
		Content:   input.Content,
		Type:      postType,
		Status:    types.PostStatusActive,
		Tags:      tags,
		Mentions:  agentNames(mentioned),
		Signature: record,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if postType == types.PostTypePlan {
		post.PinOrder = types.PlanPinOrder
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, projectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		if postType == types.PostTypePlan {
			if err := unpinPreviousPlan(ctx, transaction, projectID); err != nil {
				return err
			}
		}
		return transaction.SavePost(ctx, store.LockingStrengthUpdate, post)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, author.ID, post.ID, projectID, activity.PostCreated, post.EventMeta())
	m.stampVerified(ctx, author, record)
	m.notifier.PostCreated(ctx, project, post, author, mentioned, broadcast)
	m.dispatcher.Dispatch(ctx, projectID, types.WebhookEventPostCreated, postPayload(post, author.Name))
	return post, nil
}

// GetProjectPosts returns the project's posts, pinned ones first
func (m *managerImpl) GetProjectPosts(ctx context.Context, projectID string, filter types.PostFilter) ([]*types.Post, error) {
	if _, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID); err != nil {
		return nil, err
	}
	if filter.Type != "" && !types.ValidPostType(filter.Type) {
		return nil, status.Errorf(status.InvalidArgument, "unknown post type: %s", filter.Type)
	}
	if filter.Status != "" && !types.ValidPostStatus(filter.Status) {
		return nil, status.Errorf(status.InvalidArgument, "unknown post status: %s", filter.Status)
	}
	return m.store.GetProjectPosts(ctx, store.LockingStrengthShare, projectID, filter)
}

func (m *managerImpl) GetPost(ctx context.Context, postID string) (*types.Post, error) {
	return m.store.GetPostByID(ctx, store.LockingStrengthShare, postID)
}

// UpdatePost applies a partial edit. Touching title, content or tags rebuilds
// the signature record from this request and stamps EditedAt; status and pin
// changes leave the record alone.
func (m *managerImpl) UpdatePost(ctx context.Context, author *types.Agent, postID string, update *PostUpdate, sig *signing.RequestInput) (*types.Post, error) {
	current, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, postID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		if err := validateTitle(*update.Title); err != nil {
			return nil, err
		}
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, status.Errorf(status.InvalidArgument, "post content is required")
	}
	if update.Status != nil && !types.ValidPostStatus(*update.Status) {
		return nil, status.Errorf(status.InvalidArgument, "unknown post status: %s", *update.Status)
	}
	if update.PinOrder != nil && *update.PinOrder < 0 {
		return nil, status.Errorf(status.InvalidArgument, "pin order must not be negative")
	}
	var tags []string
	if update.Tags != nil {
		if tags, err = normalizeTags(update.Tags); err != nil {
			return nil, err
		}
	}

	if err = m.requireEditRights(ctx, current.AuthorID, current.ProjectID, author); err != nil {
		return nil, err
	}

	contentTouched := update.Title != nil || update.Content != nil || update.Tags != nil
	var record *types.SignatureRecord
	var mentioned []*types.Agent
	if contentTouched {
		record = m.verifyRequest(ctx, author, current.ProjectID, sig)
		if update.Content != nil {
			names, _ := types.ParseMentions(*update.Content)
			if mentioned, err = m.agentsManager.ResolveMentions(ctx, names); err != nil {
				return nil, err
			}
		}
	}

	var post *types.Post
	var pinChanged bool
	unlock := m.store.AcquireWriteLockByUID(ctx, current.ProjectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		post, err = transaction.GetPostByID(ctx, store.LockingStrengthUpdate, postID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if update.Title != nil {
			post.Title = *update.Title
		}
		if update.Content != nil {
			post.Content = *update.Content
			post.Mentions = agentNames(mentioned)
		}
		if update.Tags != nil {
			post.Tags = tags
		}
		if update.Status != nil {
			post.Status = *update.Status
		}
		if update.PinOrder != nil || update.Pinned != nil {
			target, err := resolvePinTarget(ctx, transaction, post, update)
			if err != nil {
				return err
			}
			if target != post.PinOrder {
				post.PinOrder = target
				pinChanged = true
			}
		}

		post.UpdatedAt = now
		if contentTouched {
			post.EditedAt = &now
			post.Signature = record
		}
		return transaction.SavePost(ctx, store.LockingStrengthUpdate, post)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, callerID(author), post.ID, post.ProjectID, activity.PostUpdated, post.EventMeta())
	if pinChanged {
		m.storeEvent(ctx, callerID(author), post.ID, post.ProjectID, activity.PostPinned, map[string]any{
			"title":     post.Title,
			"pin_order": post.PinOrder,
		})
	}
	if contentTouched {
		m.stampVerified(ctx, author, record)
	}
	m.dispatcher.Dispatch(ctx, post.ProjectID, types.WebhookEventPostUpdated, postPayload(post, m.authorName(ctx, post.AuthorID, author)))
	return post, nil
}

// DeletePost removes the post and its whole comment thread
func (m *managerImpl) DeletePost(ctx context.Context, author *types.Agent, postID string) error {
	post, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, postID)
	if err != nil {
		return err
	}
	if err = m.requireEditRights(ctx, post.AuthorID, post.ProjectID, author); err != nil {
		return err
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, post.ProjectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		if _, err := transaction.GetPostByID(ctx, store.LockingStrengthUpdate, postID); err != nil {
			return err
		}
		if err := transaction.DeleteCommentsByPostID(ctx, postID); err != nil {
			return err
		}
		return transaction.DeletePost(ctx, postID)
	})
	if err != nil {
		return err
	}

	m.storeEvent(ctx, callerID(author), postID, post.ProjectID, activity.PostDeleted, post.EventMeta())
	return nil
}

// CreateComment adds a comment to the post's thread. Replying to a reply
// reparents the comment onto the top-level ancestor, keeping threads one
// level deep; the reply notification still targets the comment the author
// answered.
func (m *managerImpl) CreateComment(ctx context.Context, author *types.Agent, postID string, input *CommentInput, sig *signing.RequestInput) (*types.Comment, error) {
	if author == nil {
		return nil, status.Errorf(status.PermissionDenied, "commenting requires a registered agent")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, status.Errorf(status.InvalidArgument, "comment content is required")
	}

	post, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, postID)
	if err != nil {
		return nil, err
	}
	project, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, post.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err = m.projectsManager.CheckMember(ctx, post.ProjectID, author.ID); err != nil {
		return nil, err
	}

	var directParent *types.Comment
	parentID := strings.TrimSpace(input.ParentID)
	if parentID != "" {
		directParent, err = m.store.GetCommentByID(ctx, store.LockingStrengthShare, parentID)
		if err != nil {
			return nil, err
		}
		if directParent.PostID != postID {
			return nil, status.Errorf(status.InvalidArgument, "parent comment belongs to a different post")
		}
		if directParent.ParentID != "" {
			parentID = directParent.ParentID
		}
	}

	record := m.verifyRequest(ctx, author, post.ProjectID, sig)
	names, broadcast := types.ParseMentions(input.Content)
	mentioned, err := m.agentsManager.ResolveMentions(ctx, names)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	comment := &types.Comment{
		ID:        types.NewCommentID(),
		PostID:    postID,
		AuthorID:  author.ID,
		ParentID:  parentID,
		Content:   input.Content,
		Mentions:  agentNames(mentioned),
		Signature: record,
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, post.ProjectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		latest, err := transaction.GetPostByID(ctx, store.LockingStrengthUpdate, postID)
		if err != nil {
			return err
		}
		if err := transaction.SaveComment(ctx, store.LockingStrengthUpdate, comment); err != nil {
			return err
		}
		// commenting bumps the thread
		latest.UpdatedAt = now
		return transaction.SavePost(ctx, store.LockingStrengthUpdate, latest)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, author.ID, comment.ID, post.ProjectID, activity.CommentCreated, comment.EventMeta())
	m.stampVerified(ctx, author, record)
	m.notifier.CommentCreated(ctx, project, post, comment, directParent, author, mentioned, broadcast)
	m.dispatcher.Dispatch(ctx, post.ProjectID, types.WebhookEventCommentCreated, commentPayload(comment, post, author.Name))
	return comment, nil
}

// GetPostComments returns the post's comments in chronological order
func (m *managerImpl) GetPostComments(ctx context.Context, postID string) ([]*types.Comment, error) {
	if _, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, postID); err != nil {
		return nil, err
	}
	return m.store.GetPostComments(ctx, store.LockingStrengthShare, postID)
}

func (m *managerImpl) CountPostComments(ctx context.Context, postID string) (int64, error) {
	return m.store.CountPostComments(ctx, postID)
}

func (m *managerImpl) GetPostCommentCounts(ctx context.Context, projectID string) (map[string]int64, error) {
	return m.store.GetPostCommentCounts(ctx, projectID)
}

// UpdateComment replaces the comment content and rebuilds its signature
// record from this request
func (m *managerImpl) UpdateComment(ctx context.Context, author *types.Agent, commentID, content string, sig *signing.RequestInput) (*types.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, status.Errorf(status.InvalidArgument, "comment content is required")
	}

	current, err := m.store.GetCommentByID(ctx, store.LockingStrengthShare, commentID)
	if err != nil {
		return nil, err
	}
	post, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, current.PostID)
	if err != nil {
		return nil, err
	}
	if err = m.requireEditRights(ctx, current.AuthorID, post.ProjectID, author); err != nil {
		return nil, err
	}

	record := m.verifyRequest(ctx, author, post.ProjectID, sig)
	names, _ := types.ParseMentions(content)
	mentioned, err := m.agentsManager.ResolveMentions(ctx, names)
	if err != nil {
		return nil, err
	}

	var comment *types.Comment
	unlock := m.store.AcquireWriteLockByUID(ctx, post.ProjectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		comment, err = transaction.GetCommentByID(ctx, store.LockingStrengthUpdate, commentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		comment.Content = content
		comment.Mentions = agentNames(mentioned)
		comment.Signature = record
		comment.UpdatedAt = now
		comment.EditedAt = &now
		return transaction.SaveComment(ctx, store.LockingStrengthUpdate, comment)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, callerID(author), commentID, post.ProjectID, activity.CommentUpdated, comment.EventMeta())
	m.stampVerified(ctx, author, record)
	return comment, nil
}

// DeleteComment removes the comment; deleting a top-level comment takes its
// replies with it
func (m *managerImpl) DeleteComment(ctx context.Context, author *types.Agent, commentID string) error {
	comment, err := m.store.GetCommentByID(ctx, store.LockingStrengthShare, commentID)
	if err != nil {
		return err
	}
	post, err := m.store.GetPostByID(ctx, store.LockingStrengthShare, comment.PostID)
	if err != nil {
		return err
	}
	if err = m.requireEditRights(ctx, comment.AuthorID, post.ProjectID, author); err != nil {
		return err
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, post.ProjectID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		if _, err := transaction.GetCommentByID(ctx, store.LockingStrengthUpdate, commentID); err != nil {
			return err
		}
		if comment.ParentID == "" {
			if err := transaction.DeleteCommentReplies(ctx, commentID); err != nil {
				return err
			}
		}
		return transaction.DeleteComment(ctx, commentID)
	})
	if err != nil {
		return err
	}

	m.storeEvent(ctx, callerID(author), commentID, post.ProjectID, activity.CommentDeleted, comment.EventMeta())
	return nil
}

// verifyRequest evaluates the request signature for the write and returns the
// record to persist. Every signed attempt leaves an audit event with the
// redacted headers, the canonical message and, on failure, the mismatch
// diagnosis; unsigned writes stay silent.
func (m *managerImpl) verifyRequest(ctx context.Context, author *types.Agent, projectID string, in *signing.RequestInput) *types.SignatureRecord {
	if in == nil || author == nil {
		return types.UnsignedRecord()
	}

	start := time.Now()
	result := m.verifier.Verify(ctx, signing.CallerIdentity{
		AgentID:        author.ID,
		AgentName:      author.Name,
		CertificatePEM: author.IdentityCertificatePEM,
	}, *in)

	if m.metrics != nil {
		if verifyMetrics := m.metrics.VerifyMetrics(); verifyMetrics != nil {
			verifyMetrics.CountVerification(result.Status, time.Since(start))
			if result.Diagnosis != nil {
				verifyMetrics.CountDiagnosis(result.Diagnosis.MatchedVariant != "")
			}
		}
	}

	record := types.NewSignatureRecord(result)
	if record.Status == types.SignatureStatusUnsigned {
		return record
	}

	meta := map[string]any{
		"status":       record.Status,
		"algorithm":    record.Algorithm,
		"method":       record.Method,
		"path":         record.Path,
		"headers":      signing.RedactHeaders(in.Header),
		"body_preview": types.Truncate(string(in.Body), auditBodyPreviewLength),
		"message":      string(signing.BuildMessage(record.Timestamp, record.Nonce, author.Name, record.Method, record.Path, record.BodyHash)),
	}
	if record.Reason != "" {
		meta["reason"] = record.Reason
	}
	if record.Diagnosis != nil {
		meta["diagnosis"] = record.Diagnosis
	}
	m.storeEvent(ctx, author.ID, author.ID, projectID, activity.RequestSignatureChecked, meta)
	return record
}

// stampVerified marks the author's identity as exercised after a verified
// write
func (m *managerImpl) stampVerified(ctx context.Context, author *types.Agent, record *types.SignatureRecord) {
	if author == nil || !record.IsVerified() {
		return
	}
	if err := m.agentsManager.MarkVerified(ctx, author.ID, record.CheckedAt); err != nil {
		log.WithContext(ctx).Warnf("failed to stamp the verification on agent %s: %s", author.Name, err)
	}
}

// requireEditRights passes for the item's author, the project leads, the
// project creator and the admin
func (m *managerImpl) requireEditRights(ctx context.Context, authorID, projectID string, caller *types.Agent) error {
	if caller != nil && caller.ID == authorID {
		return nil
	}
	return m.projectsManager.CheckLead(ctx, projectID, callerID(caller))
}

func (m *managerImpl) authorName(ctx context.Context, authorID string, caller *types.Agent) string {
	if caller != nil && caller.ID == authorID {
		return caller.Name
	}
	agent, err := m.agentsManager.GetAgent(ctx, authorID)
	if err != nil {
		return ""
	}
	return agent.Name
}

// resolvePinTarget turns the update's pin fields into a concrete pin order.
// The Pinned sugar appends behind the currently pinned posts.
func resolvePinTarget(ctx context.Context, transaction store.Store, post *types.Post, update *PostUpdate) (int, error) {
	if update.PinOrder != nil {
		return *update.PinOrder, nil
	}
	if !*update.Pinned {
		return 0, nil
	}
	if post.PinOrder > 0 {
		return post.PinOrder, nil
	}

	pinned := true
	posts, err := transaction.GetProjectPosts(ctx, store.LockingStrengthShare, post.ProjectID, types.PostFilter{Pinned: &pinned})
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, p := range posts {
		if p.PinOrder > highest {
			highest = p.PinOrder
		}
	}
	return highest + 1, nil
}

// unpinPreviousPlan clears the plan pin slot before a new plan post takes it
func unpinPreviousPlan(ctx context.Context, transaction store.Store, projectID string) error {
	previous, err := transaction.GetProjectPlanPost(ctx, store.LockingStrengthUpdate, projectID)
	if err != nil {
		if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
			return err
		}
		return nil
	}

	previous.PinOrder = 0
	previous.UpdatedAt = time.Now().UTC()
	return transaction.SavePost(ctx, store.LockingStrengthUpdate, previous)
}

func validatePostInput(input *PostInput) error {
	if err := validateTitle(input.Title); err != nil {
		return err
	}
	if strings.TrimSpace(input.Content) == "" {
		return status.Errorf(status.InvalidArgument, "post content is required")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return status.Errorf(status.InvalidArgument, "post title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return status.Errorf(status.InvalidArgument, "post title must be at most %d characters", maxTitleLength)
	}
	return nil
}

func normalizeTags(tags []string) ([]string, error) {
	if len(tags) > maxTagCount {
		return nil, status.Errorf(status.InvalidArgument, "a post carries at most %d tags", maxTagCount)
	}

	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len([]rune(tag)) > maxTagLength {
			return nil, status.Errorf(status.InvalidArgument, "tags must be at most %d characters", maxTagLength)
		}
		normalized = append(normalized, tag)
	}
	return normalized, nil
}

func agentNames(agents []*types.Agent) []string {
	if len(agents) == 0 {
		return nil
	}
	names := make([]string, 0, len(agents))
	for _, agent := range agents {
		names = append(names, agent.Name)
	}
	return names
}

func callerID(agent *types.Agent) string {
	if agent == nil {
		return types.AdminActor
	}
	return agent.ID
}

func recordStatus(record *types.SignatureRecord) string {
	if record == nil {
		return types.SignatureStatusUnsigned
	}
	return record.Status
}

func postPayload(post *types.Post, authorName string) map[string]any {
	return map[string]any{
		"id":              post.ID,
		"projectId":       post.ProjectID,
		"authorId":        post.AuthorID,
		"authorName":      authorName,
		"title":           post.Title,
		"content":         post.Content,
		"type":            post.Type,
		"status":          post.Status,
		"tags":            post.Tags,
		"pinOrder":        post.PinOrder,
		"signatureStatus": recordStatus(post.Signature),
		"createdAt":       post.CreatedAt,
		"updatedAt":       post.UpdatedAt,
	}
}

func commentPayload(comment *types.Comment, post *types.Post, authorName string) map[string]any {
	return map[string]any{
		"id":              comment.ID,
		"postId":          comment.PostID,
		"projectId":       post.ProjectID,
		"parentId":        comment.ParentID,
		"authorId":        comment.AuthorID,
		"authorName":      authorName,
		"content":         comment.Content,
		"signatureStatus": recordStatus(comment.Signature),
		"createdAt":       comment.CreatedAt,
	}
}

func (m *managerImpl) storeEvent(ctx context.Context, initiatorID, targetID, projectID string, activityID activity.Activity, meta map[string]any) {
	go func() {
		_, err := m.eventStore.Save(&activity.Event{
			Timestamp:   time.Now().UTC(),
			Activity:    activityID,
			InitiatorID: initiatorID,
			TargetID:    targetID,
			ProjectID:   projectID,
			Meta:        meta,
		})
		if err != nil {
			log.WithContext(ctx).Errorf("received an error while storing an activity event, error: %s", err)
		}
	}()
}
