package auth

import "context"

// Result of an access check. Any failure mode of the collaborator
// (transport error, timeout, malformed response, missing userId) collapses
// into Success=false; the gateway does not distinguish between them.
type Result struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

// Checker validates a token for a room and yields the authenticated
// user id. Implementations must bound their own timeouts; the gateway
// issues a single call per authenticate attempt and never retries.
type Checker interface {
	CheckAccess(ctx context.Context, token, roomID string) Result
}
