package util

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrCourseNotFound     = errors.New("course not found")
	ErrCourseNotPublished = errors.New("course has no published version")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionClosed      = errors.New("session already closed")
	ErrSessionNotClosed   = errors.New("session not closed yet")
	ErrTokenExpired       = errors.New("session token expired")
	ErrTokenInvalid       = errors.New("session token invalid")
	ErrTokenSessionMatch  = errors.New("token does not belong to this session")
	ErrIncompleteWorkflow = errors.New("verification workflow not submitted")
	ErrWorkflowNotFound   = errors.New("verification workflow not found")
	ErrWorkflowFinished   = errors.New("verification workflow already finished")
	ErrConsentDenied      = errors.New("consent denied")
)
