package websocket

import "errors"

var (
	// ErrNotAMember rejects an action on a conversation the acting user does
	// not belong to. Surfaced to the caller as a permission failure, never
	// retried.
	ErrNotAMember = errors.New("not a member of conversation")

	// ErrTransientDependency marks a membership or persistence collaborator
	// as temporarily unavailable. Resync paths retry once before surfacing
	// it as a warning; it never tears down the connection.
	ErrTransientDependency = errors.New("transient dependency failure")

	// ErrClientDisconnected is returned when delivering to a connection that
	// has already closed or whose send buffer overflowed.
	ErrClientDisconnected = errors.New("client disconnected")
)

// Error codes sent back to clients in error events.
const (
	CodeNotAMember    = "NOT_A_MEMBER"
	CodeTransient     = "TRANSIENT_FAILURE"
	CodeInvalidAction = "INVALID_ACTION"
)
