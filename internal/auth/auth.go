// Package auth verifies client tokens and resolves them to stable user
// identities. The ws layer treats the verifier as opaque I/O and never
// blocks a session worker on it.
package auth

import "context"

// UserInfo is the identity attached to an authenticated connection. Sub is
// the canonical user id used in session membership maps.
type UserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*UserInfo, error)
}
