// Package github turns inbound GitHub webhook deliveries into board posts
// authored by a shared bot agent. The first delivery for a pull request,
// issue or push creates a post keyed by the event's GitHub URL, and
// follow-up deliveries for the same reference land as comments on it.
package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

const (
	// BotAgentName is the shared author of all imported GitHub activity. The
	// agent is registered on the first delivery and never joins a project.
	BotAgentName = "GitHubBot"
	botAgentRole = "bot"

	maxImportedBodyLength  = 2000
	maxCommitSubjectLength = 60
	maxListedCommits       = 10
)

// Outcome actions reported by HandleDelivery.
const (
	OutcomeCreated   = "post_created"
	OutcomeCommented = "comment_added"
	OutcomeSkipped   = "skipped"
)

// Outcome describes what a delivery was turned into.
type Outcome struct {
	Action    string
	PostID    string
	CommentID string
}

// Receiver processes GitHub webhook deliveries addressed to a project.
type Receiver interface {
	HandleDelivery(ctx context.Context, projectID, eventType string, payload []byte) (*Outcome, error)
}

type receiverImpl struct {
	store         store.Store
	eventStore    activity.Store
	agentsManager agents.Manager
	notifier      notifications.Manager
}

// NewReceiver creates a GitHub delivery receiver.
func NewReceiver(store store.Store, eventStore activity.Store, agentsManager agents.Manager, notifier notifications.Manager) Receiver {
	return &receiverImpl{
		store:         store,
		eventStore:    eventStore,
		agentsManager: agentsManager,
		notifier:      notifier,
	}
}

// ValidSignature verifies the X-Hub-Signature-256 header against the shared
// webhook secret in constant time.
func ValidSignature(secret string, payload []byte, signatureHeader string) bool {
	if !strings.HasPrefix(signatureHeader, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// followUpActions are the delivery actions that still matter once a post for
// the reference exists. Anything else arriving on a known reference is
// dropped, which also swallows redelivered duplicates.
var followUpActions = map[string]struct{}{
	"synchronize": {},
	"reopened":    {},
	"closed":      {},
	"merged":      {},
}

type deliveryPayload struct {
	Action      string          `json:"action"`
	PullRequest *prPayload      `json:"pull_request"`
	Issue       *issuePayload   `json:"issue"`
	Repository  repoPayload     `json:"repository"`
	Ref         string          `json:"ref"`
	Compare     string          `json:"compare"`
	Pusher      *pusherPayload  `json:"pusher"`
	Commits     []commitPayload `json:"commits"`
}

type prPayload struct {
	Number   int          `json:"number"`
	Title    string       `json:"title"`
	HTMLURL  string       `json:"html_url"`
	Body     string       `json:"body"`
	Merged   bool         `json:"merged"`
	User     userPayload  `json:"user"`
	MergedBy *userPayload `json:"merged_by"`
}

type issuePayload struct {
	Number  int            `json:"number"`
	Title   string         `json:"title"`
	HTMLURL string         `json:"html_url"`
	Body    string         `json:"body"`
	User    userPayload    `json:"user"`
	Labels  []labelPayload `json:"labels"`
}

type userPayload struct {
	Login string `json:"login"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type repoPayload struct {
	FullName string `json:"full_name"`
}

type pusherPayload struct {
	Name string `json:"name"`
}

type commitPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// deliveryPost is the formatted board content of a single delivery.
type deliveryPost struct {
	Title     string
	Content   string
	Type      string
	Tags      []string
	GitHubRef string
	Action    string
	Merged    bool
}

func (m *receiverImpl) HandleDelivery(ctx context.Context, projectID, eventType string, payload []byte) (*Outcome, error) {
	project, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID)
	if err != nil {
		return nil, err
	}

	var delivery deliveryPayload
	if err := json.Unmarshal(payload, &delivery); err != nil {
		return nil, status.Errorf(status.BadRequest, "malformed delivery payload")
	}

	formatted := buildDeliveryPost(eventType, &delivery)
	if formatted == nil {
		return &Outcome{Action: OutcomeSkipped}, nil
	}

	bot, err := m.botAgent(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := m.store.GetPostByGitHubRef(ctx, store.LockingStrengthShare, projectID, formatted.GitHubRef)
	if err != nil {
		if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
			return nil, err
		}
	}
	if existing != nil {
		return m.appendFollowUp(ctx, project, existing, bot, formatted)
	}

	return m.createBoardPost(ctx, project, bot, formatted)
}

// botAgent returns the shared bot agent, registering it on the first
// delivery. A concurrent first delivery may win the registration race, so an
// AlreadyExists answer falls back to a fresh lookup.
func (m *receiverImpl) botAgent(ctx context.Context) (*types.Agent, error) {
	bot, err := m.agentsManager.GetAgentByName(ctx, BotAgentName)
	if err == nil {
		return bot, nil
	}
	if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
		return nil, err
	}

	bot, _, err = m.agentsManager.RegisterAgent(ctx, BotAgentName, botAgentRole, "")
	if err == nil {
		return bot, nil
	}
	if sErr, ok := status.FromError(err); ok && sErr.Type() == status.AlreadyExists {
		return m.agentsManager.GetAgentByName(ctx, BotAgentName)
	}

	return nil, err
}

func (m *receiverImpl) createBoardPost(ctx context.Context, project *types.Project, bot *types.Agent, formatted *deliveryPost) (*Outcome, error) {
	names, _ := types.ParseMentions(formatted.Content)
	mentioned, err := m.agentsManager.ResolveMentions(ctx, names)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	post := &types.Post{
		ID:        types.NewPostID(),
		ProjectID: project.ID,
		AuthorID:  bot.ID,
		Title:     formatted.Title,
		Content:   formatted.Content,
		Type:      formatted.Type,
		Status:    types.PostStatusActive,
		Tags:      formatted.Tags,
		Mentions:  agentNames(mentioned),
		GitHubRef: formatted.GitHubRef,
		Signature: types.UnsignedRecord(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, project.ID)
	defer unlock()

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		return transaction.SavePost(ctx, store.LockingStrengthUpdate, post)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, bot.ID, post.ID, project.ID, activity.GitHubPostCreated, map[string]any{
		"title":      post.Title,
		"github_ref": post.GitHubRef,
	})
	m.notifier.PostCreated(ctx, project, post, bot, mentioned, false)

	return &Outcome{Action: OutcomeCreated, PostID: post.ID}, nil
}

func (m *receiverImpl) appendFollowUp(ctx context.Context, project *types.Project, post *types.Post, bot *types.Agent, formatted *deliveryPost) (*Outcome, error) {
	if _, ok := followUpActions[formatted.Action]; !ok {
		return &Outcome{Action: OutcomeSkipped, PostID: post.ID}, nil
	}

	names, _ := types.ParseMentions(formatted.Content)
	mentioned, err := m.agentsManager.ResolveMentions(ctx, names)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	comment := &types.Comment{
		ID:        types.NewCommentID(),
		PostID:    post.ID,
		AuthorID:  bot.ID,
		Content:   formatted.Content,
		Mentions:  agentNames(mentioned),
		Signature: types.UnsignedRecord(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, project.ID)
	defer unlock()

	var latest *types.Post
	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		latest, err = transaction.GetPostByID(ctx, store.LockingStrengthUpdate, post.ID)
		if err != nil {
			return err
		}

		if err = transaction.SaveComment(ctx, store.LockingStrengthUpdate, comment); err != nil {
			return err
		}

		if formatted.Action == "closed" {
			if formatted.Merged {
				latest.Status = types.PostStatusResolved
			} else {
				latest.Status = types.PostStatusArchived
			}
		}
		latest.UpdatedAt = now

		return transaction.SavePost(ctx, store.LockingStrengthUpdate, latest)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, bot.ID, comment.ID, project.ID, activity.CommentCreated, comment.EventMeta())
	m.notifier.CommentCreated(ctx, project, latest, comment, nil, bot, mentioned, false)

	return &Outcome{Action: OutcomeCommented, PostID: post.ID, CommentID: comment.ID}, nil
}

// buildDeliveryPost formats a delivery into board content. A nil result means
// the event carries nothing the board can use.
func buildDeliveryPost(eventType string, delivery *deliveryPayload) *deliveryPost {
	switch eventType {
	case "pull_request":
		if delivery.PullRequest == nil {
			return nil
		}
		return formatPullRequest(delivery)
	case "issues":
		if delivery.Issue == nil {
			return nil
		}
		return formatIssue(delivery)
	case "push":
		if len(delivery.Commits) == 0 || delivery.Compare == "" {
			return nil
		}
		return formatPush(delivery)
	default:
		return nil
	}
}

func formatPullRequest(delivery *deliveryPayload) *deliveryPost {
	pr := delivery.PullRequest
	repo := delivery.Repository.FullName

	post := &deliveryPost{
		Title:     fmt.Sprintf("🔀 PR #%d: %s", pr.Number, pr.Title),
		Type:      types.PostTypeUpdate,
		Tags:      []string{"github", "pr"},
		GitHubRef: pr.HTMLURL,
		Action:    delivery.Action,
		Merged:    pr.Merged,
	}

	switch delivery.Action {
	case "opened":
		post.Type = types.PostTypeQuestion
		post.Content = fmt.Sprintf("**New Pull Request** from @%s\n\n**Repository:** %s\n**Link:** %s\n\n---\n\n%s\n\n---\n\n_Discuss this PR below. @mention reviewers to notify them._",
			pr.User.Login, repo, pr.HTMLURL, importedBody(pr.Body))
	case "closed":
		closer := pr.User.Login
		verdict := "❌ **PR closed**"
		if pr.Merged {
			verdict = "✅ **PR merged**"
			if pr.MergedBy != nil {
				closer = pr.MergedBy.Login
			}
		}
		post.Content = fmt.Sprintf("%s by @%s\n\n**Repository:** %s\n**Link:** %s", verdict, closer, repo, pr.HTMLURL)
	default:
		post.Content = fmt.Sprintf("**PR Updated** (%s)\n\n**Repository:** %s\n**Link:** %s\n\n_New commits pushed or PR state changed._",
			delivery.Action, repo, pr.HTMLURL)
	}

	return post
}

func formatIssue(delivery *deliveryPayload) *deliveryPost {
	issue := delivery.Issue
	repo := delivery.Repository.FullName

	post := &deliveryPost{
		Title:     fmt.Sprintf("📋 Issue #%d: %s", issue.Number, issue.Title),
		Type:      types.PostTypeUpdate,
		Tags:      []string{"github", "issue"},
		GitHubRef: issue.HTMLURL,
		Action:    delivery.Action,
	}

	switch delivery.Action {
	case "opened":
		post.Type = types.PostTypeQuestion
		post.Content = fmt.Sprintf("**New Issue** from @%s\n\n**Repository:** %s\n**Labels:** %s\n**Link:** %s\n\n---\n\n%s\n\n---\n\n_Discuss this issue below._",
			issue.User.Login, repo, labelList(issue.Labels), issue.HTMLURL, importedBody(issue.Body))
	case "closed":
		post.Content = fmt.Sprintf("✅ **Issue closed** by @%s\n\n**Repository:** %s\n**Link:** %s", issue.User.Login, repo, issue.HTMLURL)
	default:
		post.Content = fmt.Sprintf("**Issue Updated** (%s)\n\n**Repository:** %s\n**Link:** %s", delivery.Action, repo, issue.HTMLURL)
	}

	return post
}

func formatPush(delivery *deliveryPayload) *deliveryPost {
	branch := delivery.Ref
	if idx := strings.LastIndex(branch, "/"); idx >= 0 {
		branch = branch[idx+1:]
	}
	pusher := ""
	if delivery.Pusher != nil {
		pusher = delivery.Pusher.Name
	}

	listed := delivery.Commits
	overflow := 0
	if len(listed) > maxListedCommits {
		overflow = len(listed) - maxListedCommits
		listed = listed[:maxListedCommits]
	}
	lines := make([]string, 0, len(listed)+1)
	for _, commit := range listed {
		lines = append(lines, fmt.Sprintf("- `%s` %s", shortCommitID(commit.ID), commitSubject(commit.Message)))
	}
	if overflow > 0 {
		lines = append(lines, fmt.Sprintf("- _...and %d more_", overflow))
	}

	return &deliveryPost{
		Title: fmt.Sprintf("📦 Push to %s: %d commit(s)", branch, len(delivery.Commits)),
		Content: fmt.Sprintf("**Push** by @%s to `%s`\n\n**Repository:** %s\n**Compare:** %s\n\n**Commits:**\n%s",
			pusher, branch, delivery.Repository.FullName, delivery.Compare, strings.Join(lines, "\n")),
		Type:      types.PostTypeUpdate,
		Tags:      []string{"github", "push"},
		GitHubRef: delivery.Compare,
		Action:    delivery.Action,
	}
}

func importedBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return "_No description provided._"
	}
	return types.Truncate(body, maxImportedBodyLength)
}

func labelList(labels []labelPayload) string {
	if len(labels) == 0 {
		return "_none_"
	}

	quoted := make([]string, 0, len(labels))
	for _, label := range labels {
		quoted = append(quoted, "`"+label.Name+"`")
	}
	return strings.Join(quoted, ", ")
}

func shortCommitID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// commitSubject keeps the first line of a commit message, shortened to fit a
// list entry.
func commitSubject(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	return types.Truncate(message, maxCommitSubjectLength)
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

func (m *receiverImpl) storeEvent(ctx context.Context, initiatorID, targetID, projectID string, activityID activity.Activity, meta map[string]any) {
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
