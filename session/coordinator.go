package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/provider"
)

// ErrNoSession is returned when a session is requested for a handle that has
// nothing to refresh from.
var ErrNoSession = errors.New("no current session")

// Handle is the per-user state the coordinator reads and replaces. auth.User
// implements it.
type Handle interface {
	Username() string
	CachedSession() *Session
	SetCachedSession(*Session)
	ClearCachedSession()
	// ViaHostedUI reports whether the session was established through the
	// hosted redirect flow, which changes how cleanup signs the user out.
	ViaHostedUI() bool
}

// Refresher is the slice of the identity-provider client the coordinator
// needs.
type Refresher interface {
	RefreshSession(ctx context.Context, username, refreshToken string) (*provider.Tokens, error)
}

// CredentialsClearer drops any exchanged cloud credentials during session
// cleanup. credentials.Exchanger satisfies it.
type CredentialsClearer interface {
	Clear(ctx context.Context) error
}

// HostedSignOut performs the hosted sign-out redirect for users that signed
// in through the hosted flow.
type HostedSignOut interface {
	SignOutRedirect(ctx context.Context) error
}

// Coordinator owns the single source of truth for "what is the current valid
// session". Concurrent refresh requests for the same user are collapsed into
// one provider call; every waiter observes the identical outcome.
type Coordinator struct {
	refresher Refresher
	bus       events.Bus
	creds     CredentialsClearer // optional
	hosted    HostedSignOut      // optional
	group     singleflight.Group
	nowTime   func() time.Time
	log       zerolog.Logger
}

// CoordinatorOption modifies a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// WithCredentialsClearer wires the cloud-credential subsystem into session
// cleanup.
func WithCredentialsClearer(cc CredentialsClearer) CoordinatorOption {
	return func(c *Coordinator) {
		c.creds = cc
	}
}

// WithHostedSignOut wires the hosted sign-out redirect into session cleanup.
func WithHostedSignOut(h HostedSignOut) CoordinatorOption {
	return func(c *Coordinator) {
		c.hosted = h
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// NewCoordinator initializes a Coordinator with required dependencies.
func NewCoordinator(refresher Refresher, bus events.Bus, options ...CoordinatorOption) (*Coordinator, error) {
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] refresher is required")
	}
	if bus == nil {
		return nil, errors.New("[NewCoordinator] bus is required")
	}

	c := &Coordinator{
		refresher: refresher,
		bus:       bus,
		nowTime:   time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// GetSession returns the user's current valid session, refreshing it through
// the provider when the cached one has expired. While a refresh is in flight
// every concurrent caller for the same user attaches to it instead of
// starting another provider call, and all of them receive the same session
// or the same error.
func (c *Coordinator) GetSession(ctx context.Context, h Handle) (*Session, error) {
	if s := h.CachedSession(); s != nil && s.Valid(c.nowTime()) {
		return s, nil
	}

	v, err, _ := c.group.Do(h.Username(), func() (any, error) {
		return c.refresh(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (c *Coordinator) refresh(ctx context.Context, h Handle) (*Session, error) {
	// A caller that queued behind an in-flight refresh may find the work
	// already done.
	if s := h.CachedSession(); s != nil && s.Valid(c.nowTime()) {
		return s, nil
	}

	current := h.CachedSession()
	if current == nil || current.RefreshToken() == "" {
		return nil, errors.Wrap(ErrNoSession, "[Coordinator.GetSession]")
	}

	tokens, err := c.refresher.RefreshSession(ctx, h.Username(), current.RefreshToken())
	if err != nil {
		c.bus.Dispatch(events.ChannelAuth, events.Event{
			Name:    events.TokenRefreshFailure,
			Message: "session refresh failed",
			Data:    err,
		})
		if provider.IsSessionInvalid(err) {
			c.log.Warn().Str("username", h.Username()).Err(err).Msg("session no longer valid, cleaning up local state")
			if cleanupErr := c.cleanup(ctx, h); cleanupErr != nil {
				return nil, errors.Wrapf(err, "[Coordinator.GetSession] session cleanup also failed: %v", cleanupErr)
			}
		}
		return nil, err
	}

	next, err := New(tokens.IDToken, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Coordinator.GetSession] rebuild session")
	}
	h.SetCachedSession(next)
	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.TokenRefresh,
		Message: "session refreshed",
	})
	return next, nil
}

// cleanup tears down local state after the provider declared the session
// unrecoverable: local sign-out, cloud-credential clear, and either the
// hosted sign-out redirect or a sign-out notification. The user is signed
// out locally before any step that can fail.
func (c *Coordinator) cleanup(ctx context.Context, h Handle) error {
	viaHosted := h.ViaHostedUI()
	h.ClearCachedSession()

	if c.creds != nil {
		if err := c.creds.Clear(ctx); err != nil {
			return errors.Wrap(err, "clear credentials")
		}
	}

	if viaHosted && c.hosted != nil {
		if err := c.hosted.SignOutRedirect(ctx); err != nil {
			return errors.Wrap(err, "hosted sign-out redirect")
		}
		return nil
	}

	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.SignOut,
		Message: "signed out locally after invalid session",
	})
	return nil
}
