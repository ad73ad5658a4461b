package auth

import (
	"sync"

	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/session"
)

// PendingChallenge is the transient state attached to an in-progress sign-in
// attempt. It exists only between challenge issuance and the caller's next
// action; a terminal success or failure clears it.
type PendingChallenge struct {
	Kind       provider.ChallengeKind
	Parameters map[string]string

	// continuation is the provider token echoed back when answering.
	continuation string
}

// User is the handle for one authenticated (or authenticating) principal.
// It carries the cached session, any pending challenge, and the profile
// attributes fetched after sign-in. A User is safe for concurrent use.
type User struct {
	mu          sync.Mutex
	username    string
	session     *session.Session
	challenge   *PendingChallenge
	attributes  map[string]string
	viaHostedUI bool
}

// NewUser creates a handle for username.
func NewUser(username string) *User {
	return &User{username: username}
}

func (u *User) Username() string { return u.username }

// CachedSession returns the session currently attached to the handle, valid
// or not. Callers that need a usable session go through the coordinator.
func (u *User) CachedSession() *session.Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

func (u *User) SetCachedSession(s *session.Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.session = s
}

func (u *User) ClearCachedSession() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.session = nil
}

// ViaHostedUI reports whether this handle's session came from the hosted
// redirect flow.
func (u *User) ViaHostedUI() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.viaHostedUI
}

func (u *User) markHostedUI() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.viaHostedUI = true
}

// Challenge returns the pending challenge, or nil when the last attempt
// reached a terminal outcome.
func (u *User) Challenge() *PendingChallenge {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.challenge
}

func (u *User) setChallenge(ch *PendingChallenge) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.challenge = ch
}

func (u *User) clearChallenge() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.challenge = nil
}

// Attributes returns the profile attributes fetched at the last successful
// sign-in.
func (u *User) Attributes() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	attrs := make(map[string]string, len(u.attributes))
	for k, v := range u.attributes {
		attrs[k] = v
	}
	return attrs
}

func (u *User) setAttributes(attrs map[string]string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.attributes = attrs
}
