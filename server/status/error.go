// Package status defines the internal error type shared by managers and the
// HTTP layer. Handlers map the error Type onto HTTP status codes.
package status

import (
	"errors"
	"fmt"
)

const (
	// PreconditionFailed indicates that some pre-condition for the operation hasn't been fulfilled
	PreconditionFailed Type = 1

	// PermissionDenied indicates that an agent has no permission to perform the operation
	PermissionDenied Type = 2

	// NotFound indicates that the object wasn't found in the system
	NotFound Type = 3

	// Internal indicates some generic internal error
	Internal Type = 4

	// InvalidArgument indicates some generic invalid argument error
	InvalidArgument Type = 5

	// AlreadyExists indicates a generic error when an object already exists in the system
	AlreadyExists Type = 6

	// Unauthorized indicates that an agent is not authorized for the operation
	Unauthorized Type = 7

	// BadRequest indicates a malformed request
	BadRequest Type = 8

	// Unauthenticated indicates absence of valid credentials
	Unauthenticated Type = 9

	// TooManyRequests indicates that the caller has sent too many requests in a given amount of time
	TooManyRequests Type = 10
)

// Type is a type of the Error
type Type int32

// Error is an internal error
type Error struct {
	ErrorType Type
	Message   string
}

// Type returns the Type of the error
func (e *Error) Type() Type {
	return e.ErrorType
}

// Error is an error string
func (e *Error) Error() string {
	return e.Message
}

// Errorf returns Error(ErrorType, fmt.Sprintf(format, a...)).
func Errorf(errorType Type, format string, a ...interface{}) error {
	return &Error{
		ErrorType: errorType,
		Message:   fmt.Sprintf(format, a...),
	}
}

// FromError returns Error, true if the provided error is of type of Error. nil, false otherwise
func FromError(err error) (s *Error, ok bool) {
	if err == nil {
		return nil, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// NewAgentNotFoundError creates a new Error with NotFound type for a missing agent
func NewAgentNotFoundError(agentID string) error {
	return Errorf(NotFound, "agent not found: %s", agentID)
}

// NewAgentNameTakenError creates a new Error with AlreadyExists type for a duplicate agent name
func NewAgentNameTakenError(name string) error {
	return Errorf(AlreadyExists, "agent name already registered: %s", name)
}

// NewProjectNotFoundError creates a new Error with NotFound type for a missing project
func NewProjectNotFoundError(projectID string) error {
	return Errorf(NotFound, "project not found: %s", projectID)
}

// NewPostNotFoundError creates a new Error with NotFound type for a missing post
func NewPostNotFoundError(postID string) error {
	return Errorf(NotFound, "post not found: %s", postID)
}

// NewCommentNotFoundError creates a new Error with NotFound type for a missing comment
func NewCommentNotFoundError(commentID string) error {
	return Errorf(NotFound, "comment not found: %s", commentID)
}

// NewWebhookNotFoundError creates a new Error with NotFound type for a missing webhook
func NewWebhookNotFoundError(webhookID string) error {
	return Errorf(NotFound, "webhook not found: %s", webhookID)
}

// NewNotificationNotFoundError creates a new Error with NotFound type for a missing notification
func NewNotificationNotFoundError(notificationID string) error {
	return Errorf(NotFound, "notification not found: %s", notificationID)
}

// NewNotAMemberError creates a new Error with PermissionDenied type for an agent outside a project
func NewNotAMemberError() error {
	return Errorf(PermissionDenied, "agent is not a member of this project")
}

// NewNotALeadError creates a new Error with PermissionDenied type for a member lacking the lead role
func NewNotALeadError() error {
	return Errorf(PermissionDenied, "operation requires the lead role")
}

// NewUnauthenticatedError creates a new Error with Unauthenticated type
func NewUnauthenticatedError() error {
	return Errorf(Unauthenticated, "no valid credentials provided")
}

// NewInvalidKeyIDError creates a new Error with Unauthenticated type for an unknown API key
func NewInvalidKeyIDError() error {
	return Errorf(Unauthenticated, "invalid API key")
}
