// Package events defines the process-wide notification bus the orchestration
// layer broadcasts lifecycle events on. Delivery is at-least-once to all
// current subscribers of a channel; there is no ordering guarantee across
// channels.
package events

// ChannelAuth carries every authentication lifecycle event this library
// dispatches.
const ChannelAuth = "auth"

// Event names dispatched on ChannelAuth.
const (
	SignIn              = "signIn"
	SignInFailure       = "signIn_failure"
	SignOut             = "signOut"
	TokenRefresh        = "tokenRefresh"
	TokenRefreshFailure = "tokenRefresh_failure"
	ConfirmSignUp       = "confirmSignUp"
	AutoSignIn          = "autoSignIn"
	AutoSignInFailure   = "autoSignIn_failure"
	HostedSignIn        = "hostedSignIn"
	HostedSignInFailure = "hostedSignIn_failure"
	CustomOAuthState    = "customOAuthState"
	CustomStateFailure  = "customState_failure"
	RedirectResolved    = "redirectResolved"
)

// Event is a single notification broadcast on a channel.
type Event struct {
	Name    string
	Message string
	Data    any
}

// Handler consumes events. Handlers must not block; the bus may invoke them
// synchronously on the dispatching goroutine.
type Handler func(Event)

// Subscription identifies one registered handler. Unsubscribing through the
// handle replaces removal-by-closure-identity: two subscriptions of the same
// function are independent.
type Subscription interface {
	Unsubscribe()
}

// Bus is the notification bus collaborator.
type Bus interface {
	Dispatch(channel string, ev Event)
	Subscribe(channel string, h Handler) Subscription
}
