package activity

const (
	// AgentRegistered indicates that a new agent registered on the board
	AgentRegistered Activity = iota
	// AgentDeleted indicates that the admin removed an agent
	AgentDeleted
	// AgentIdentityBound indicates that a certificate or public key was bound to an agent
	AgentIdentityBound
	// AgentIdentityVerified indicates that the admin marked an agent identity as verified
	AgentIdentityVerified
	// RequestSignatureChecked indicates that a signed write request was evaluated
	RequestSignatureChecked
	// ProjectCreated indicates that an agent created a project
	ProjectCreated
	// ProjectUpdated indicates that a creator or lead changed project details
	ProjectUpdated
	// ProjectDeleted indicates that a lead or the admin deleted a project
	ProjectDeleted
	// ProjectMemberAdded indicates that an agent was added to a project
	ProjectMemberAdded
	// ProjectMemberRemoved indicates that an agent was removed from a project
	ProjectMemberRemoved
	// PostCreated indicates that an agent created a post
	PostCreated
	// PostUpdated indicates that an agent updated a post
	PostUpdated
	// PostDeleted indicates that an agent deleted a post
	PostDeleted
	// PostPinned indicates that the pin order of a post changed
	PostPinned
	// CommentCreated indicates that an agent commented on a post
	CommentCreated
	// CommentUpdated indicates that an agent edited a comment
	CommentUpdated
	// CommentDeleted indicates that an agent deleted a comment
	CommentDeleted
	// WebhookCreated indicates that a webhook was registered on a project
	WebhookCreated
	// WebhookDeleted indicates that a webhook was removed from a project
	WebhookDeleted
	// BroadcastSent indicates that an @all broadcast went out to project members
	BroadcastSent
	// GitHubPostCreated indicates that an inbound GitHub event was turned into a post
	GitHubPostCreated
)

const (
	// AgentRegisteredMessage is a human-readable text message of the AgentRegistered activity
	AgentRegisteredMessage string = "Agent registered"
	// AgentDeletedMessage is a human-readable text message of the AgentDeleted activity
	AgentDeletedMessage string = "Agent deleted"
	// AgentIdentityBoundMessage is a human-readable text message of the AgentIdentityBound activity
	AgentIdentityBoundMessage string = "Agent identity bound"
	// AgentIdentityVerifiedMessage is a human-readable text message of the AgentIdentityVerified activity
	AgentIdentityVerifiedMessage string = "Agent identity verified"
	// RequestSignatureCheckedMessage is a human-readable text message of the RequestSignatureChecked activity
	RequestSignatureCheckedMessage string = "Request signature checked"
	// ProjectCreatedMessage is a human-readable text message of the ProjectCreated activity
	ProjectCreatedMessage string = "Project created"
	// ProjectUpdatedMessage is a human-readable text message of the ProjectUpdated activity
	ProjectUpdatedMessage string = "Project updated"
	// ProjectDeletedMessage is a human-readable text message of the ProjectDeleted activity
	ProjectDeletedMessage string = "Project deleted"
	// ProjectMemberAddedMessage is a human-readable text message of the ProjectMemberAdded activity
	ProjectMemberAddedMessage string = "Project member added"
	// ProjectMemberRemovedMessage is a human-readable text message of the ProjectMemberRemoved activity
	ProjectMemberRemovedMessage string = "Project member removed"
	// PostCreatedMessage is a human-readable text message of the PostCreated activity
	PostCreatedMessage string = "Post created"
	// PostUpdatedMessage is a human-readable text message of the PostUpdated activity
	PostUpdatedMessage string = "Post updated"
	// PostDeletedMessage is a human-readable text message of the PostDeleted activity
	PostDeletedMessage string = "Post deleted"
	// PostPinnedMessage is a human-readable text message of the PostPinned activity
	PostPinnedMessage string = "Post pin order updated"
	// CommentCreatedMessage is a human-readable text message of the CommentCreated activity
	CommentCreatedMessage string = "Comment created"
	// CommentUpdatedMessage is a human-readable text message of the CommentUpdated activity
	CommentUpdatedMessage string = "Comment updated"
	// CommentDeletedMessage is a human-readable text message of the CommentDeleted activity
	CommentDeletedMessage string = "Comment deleted"
	// WebhookCreatedMessage is a human-readable text message of the WebhookCreated activity
	WebhookCreatedMessage string = "Webhook created"
	// WebhookDeletedMessage is a human-readable text message of the WebhookDeleted activity
	WebhookDeletedMessage string = "Webhook deleted"
	// BroadcastSentMessage is a human-readable text message of the BroadcastSent activity
	BroadcastSentMessage string = "Broadcast sent"
	// GitHubPostCreatedMessage is a human-readable text message of the GitHubPostCreated activity
	GitHubPostCreatedMessage string = "GitHub event posted"
)

// Activity that triggered an Event
type Activity int

// Message returns a string representation of an activity
func (a Activity) Message() string {
	switch a {
	case AgentRegistered:
		return AgentRegisteredMessage
	case AgentDeleted:
		return AgentDeletedMessage
	case AgentIdentityBound:
		return AgentIdentityBoundMessage
	case AgentIdentityVerified:
		return AgentIdentityVerifiedMessage
	case RequestSignatureChecked:
		return RequestSignatureCheckedMessage
	case ProjectCreated:
		return ProjectCreatedMessage
	case ProjectUpdated:
		return ProjectUpdatedMessage
	case ProjectDeleted:
		return ProjectDeletedMessage
	case ProjectMemberAdded:
		return ProjectMemberAddedMessage
	case ProjectMemberRemoved:
		return ProjectMemberRemovedMessage
	case PostCreated:
		return PostCreatedMessage
	case PostUpdated:
		return PostUpdatedMessage
	case PostDeleted:
		return PostDeletedMessage
	case PostPinned:
		return PostPinnedMessage
	case CommentCreated:
		return CommentCreatedMessage
	case CommentUpdated:
		return CommentUpdatedMessage
	case CommentDeleted:
		return CommentDeletedMessage
	case WebhookCreated:
		return WebhookCreatedMessage
	case WebhookDeleted:
		return WebhookDeletedMessage
	case BroadcastSent:
		return BroadcastSentMessage
	case GitHubPostCreated:
		return GitHubPostCreatedMessage
	default:
		return "UNKNOWN_ACTIVITY"
	}
}

// StringCode returns a string code of the activity
func (a Activity) StringCode() string {
	switch a {
	case AgentRegistered:
		return "agent.register"
	case AgentDeleted:
		return "agent.delete"
	case AgentIdentityBound:
		return "agent.identity.bind"
	case AgentIdentityVerified:
		return "agent.identity.verify"
	case RequestSignatureChecked:
		return "signature.check"
	case ProjectCreated:
		return "project.create"
	case ProjectUpdated:
		return "project.update"
	case ProjectDeleted:
		return "project.delete"
	case ProjectMemberAdded:
		return "project.member.add"
	case ProjectMemberRemoved:
		return "project.member.delete"
	case PostCreated:
		return "post.create"
	case PostUpdated:
		return "post.update"
	case PostDeleted:
		return "post.delete"
	case PostPinned:
		return "post.pin"
	case CommentCreated:
		return "comment.create"
	case CommentUpdated:
		return "comment.update"
	case CommentDeleted:
		return "comment.delete"
	case WebhookCreated:
		return "webhook.create"
	case WebhookDeleted:
		return "webhook.delete"
	case BroadcastSent:
		return "broadcast.send"
	case GitHubPostCreated:
		return "github.post.create"
	default:
		return "UNKNOWN_ACTIVITY"
	}
}
