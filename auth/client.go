// Package auth is the client-side authentication orchestration layer. It
// drives credential sign-in through the provider's challenge sequence,
// completes hosted-UI redirects, keeps the current session fresh through the
// session coordinator, and transparently signs users in after registration.
//
// A Client is an explicitly constructed orchestration context: there is no
// process-wide singleton, and independent Clients (e.g. in tests) do not
// share state.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/veridianlabs/go-auth-client/credentials"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/hostedui"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/session"
	"github.com/veridianlabs/go-auth-client/storage"
)

const (
	defaultRedirectWait = 10 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultPollCeiling  = 3 * time.Minute
)

// ConfirmationStrategy selects how the application expects accounts to be
// confirmed after sign-up, which in turn selects the auto sign-in strategy.
type ConfirmationStrategy string

const (
	// ConfirmByCode waits for the application to call ConfirmSignUp with
	// the emailed/texted code.
	ConfirmByCode ConfirmationStrategy = "code"
	// ConfirmByLink polls the provider until the user clicks the
	// confirmation link.
	ConfirmByLink ConfirmationStrategy = "link"
)

// Config holds the Client's collaborators.
type Config struct {
	Provider provider.Client
	Storage  storage.Store
	Bus      events.Bus
	// Credentials, when set, is the subsystem that turns sessions into
	// short-lived cloud credentials.
	Credentials credentials.Exchanger
	// HostedUI, when set, enables the browser-redirect sign-in flow.
	HostedUI *hostedui.Handler
}

// Client orchestrates one application's authentication state.
type Client struct {
	provider    provider.Client
	store       storage.Store
	bus         events.Bus
	creds       credentials.Exchanger
	hosted      *hostedui.Handler
	coordinator *session.Coordinator
	log         zerolog.Logger
	nowTime     func() time.Time

	redirectWait time.Duration
	pollInterval time.Duration
	pollCeiling  time.Duration
	confirmation ConfirmationStrategy

	mu                    sync.Mutex
	current               *User
	passwordSignInPending bool
}

// Option modifies a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithRedirectWait bounds how long CurrentUser waits for an in-progress
// hosted redirect to resolve.
func WithRedirectWait(d time.Duration) Option {
	return func(c *Client) {
		c.redirectWait = d
	}
}

// WithAutoSignInTiming overrides the polling interval and ceiling of the
// link-confirmation auto sign-in strategy.
func WithAutoSignInTiming(interval, ceiling time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollCeiling = ceiling
	}
}

// WithConfirmationStrategy selects the auto sign-in strategy used for
// unconfirmed accounts.
func WithConfirmationStrategy(s ConfirmationStrategy) Option {
	return func(c *Client) {
		c.confirmation = s
	}
}

// New initializes a Client with required dependencies. A stale auto sign-in
// polling marker left by a previous process is detected here and dispatched
// as an abandoned attempt.
func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.Provider == nil {
		return nil, errors.New("[auth.New] Provider is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("[auth.New] Storage is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("[auth.New] Bus is required")
	}

	c := &Client{
		provider:     cfg.Provider,
		store:        cfg.Storage,
		bus:          cfg.Bus,
		creds:        cfg.Credentials,
		hosted:       cfg.HostedUI,
		log:          zerolog.Nop(),
		nowTime:      time.Now,
		redirectWait: defaultRedirectWait,
		pollInterval: defaultPollInterval,
		pollCeiling:  defaultPollCeiling,
		confirmation: ConfirmByCode,
	}
	for _, opt := range options {
		opt(c)
	}

	coordOpts := []session.CoordinatorOption{
		session.WithLogger(c.log),
		session.WithNowTime(c.nowTime),
	}
	if c.creds != nil {
		coordOpts = append(coordOpts, session.WithCredentialsClearer(c.creds))
	}
	if c.hosted != nil {
		coordOpts = append(coordOpts, session.WithHostedSignOut(c.hosted))
	}
	coordinator, err := session.NewCoordinator(c.provider, c.bus, coordOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[auth.New] coordinator")
	}
	c.coordinator = coordinator

	c.recoverStaleAutoSignIn(context.Background())

	return c, nil
}

// CurrentUser returns the signed-in user handle. When a hosted redirect is
// still being processed the call waits (bounded) for it to resolve rather
// than answering with a stale "no current user"; on timeout it proceeds
// best-effort.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	if c.hosted != nil {
		c.hosted.AwaitRedirect(ctx, c.redirectWait)
	}
	if err := storage.Sync(ctx, c.store); err != nil {
		return nil, errors.Wrap(err, "[Client.CurrentUser] storage sync")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, NoCurrentUserErr
	}
	return c.current, nil
}

// Session returns the current user's valid session, refreshing it through
// the coordinator when needed.
func (c *Client) Session(ctx context.Context) (*session.Session, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.coordinator.GetSession(ctx, user)
}

// SignOut ends the current user's session. With global set the provider is
// asked to revoke every device's tokens first; local state is cleared either
// way.
func (c *Client) SignOut(ctx context.Context, global bool) error {
	c.mu.Lock()
	user := c.current
	c.current = nil
	c.mu.Unlock()

	if user == nil {
		return nil
	}

	if global {
		if sess := user.CachedSession(); sess != nil {
			if err := c.provider.SignOut(ctx, sess.AccessToken()); err != nil {
				return errors.Wrap(err, "[Client.SignOut] provider sign-out")
			}
		}
	}

	if c.creds != nil {
		if err := c.creds.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear cloud credentials on sign-out")
		}
	}

	viaHosted := user.ViaHostedUI()
	user.ClearCachedSession()
	user.clearChallenge()

	if viaHosted && c.hosted != nil {
		if err := c.hosted.SignOutRedirect(ctx); err != nil {
			return errors.Wrap(err, "[Client.SignOut] hosted sign-out redirect")
		}
		return nil
	}

	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.SignOut,
		Message: "signed out",
		Data:    user.Username(),
	})
	return nil
}

// StartHostedSignIn returns the provider authorization URL for the host to
// navigate to, embedding customState in the OAuth state parameter.
func (c *Client) StartHostedSignIn(customState, diagnostic string) (string, error) {
	if c.hosted == nil {
		return "", HostedUINotConfiguredErr
	}
	return c.hosted.StartSignIn(customState, diagnostic)
}

// CompleteHostedSignIn processes a post-redirect callback URL and, when it
// yields a session, adopts the resulting user as the current user. Exchange
// failures are reported on the bus only; see hostedui.Handler.
func (c *Client) CompleteHostedSignIn(ctx context.Context, rawURL string) (*hostedui.Outcome, error) {
	if c.hosted == nil {
		return nil, HostedUINotConfiguredErr
	}

	outcome := c.hosted.HandleRedirect(ctx, rawURL)
	if outcome.Session != nil {
		user := NewUser(outcome.Username)
		user.markHostedUI()
		user.SetCachedSession(outcome.Session)
		c.setCurrentUser(user)
	}
	return outcome, nil
}

func (c *Client) setCurrentUser(user *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = user
}
