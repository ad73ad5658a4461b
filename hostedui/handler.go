// Package hostedui completes browser-redirect-based federated sign-in. The
// provider-hosted page redirects back to the application with a code (or an
// error); HandleRedirect turns that callback URL into a session, exactly once
// per URL, and reports the outcome over the notification bus.
package hostedui

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/session"
	"github.com/veridianlabs/go-auth-client/storage"
)

const (
	// diagnosticKey stores the custom user-agent/diagnostic value saved at
	// sign-in initiation; it is retrieved and cleared when the redirect
	// comes back.
	diagnosticKey = "hostedui.diagnostic"

	// customStateDelimiter separates the CSRF portion of the OAuth state
	// parameter from embedded application state.
	customStateDelimiter = "-"

	// consumedURLTTL bounds how long a handled callback URL is remembered
	// for duplicate suppression. Spent authorization codes expire far
	// sooner than this.
	consumedURLTTL = 10 * time.Minute
)

// ExchangeResult is the token triple (plus echoed state) returned by the
// external OAuth exchange.
type ExchangeResult struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	State        string
}

// CodeExchanger is the external OAuth exchange handler. Exchanger in this
// package is the default implementation; hosts may substitute their own.
type CodeExchanger interface {
	// AuthorizeURL builds the provider authorization URL for the given
	// state parameter.
	AuthorizeURL(state string) (string, error)
	// ExchangeCode trades the code (or token) in the callback URL for a
	// token triple.
	ExchangeCode(ctx context.Context, callbackURL string) (*ExchangeResult, error)
	// SignOut performs the provider's hosted sign-out redirect.
	SignOut(ctx context.Context) error
}

// CredentialsExchanger is the slice of the cloud-credential subsystem the
// redirect handler needs. credentials.Exchanger satisfies it.
type CredentialsExchanger interface {
	Exchange(ctx context.Context, sess *session.Session) error
}

// Outcome reports what one HandleRedirect call did. Handled is false when
// the URL was not an auth redirect or was already processed. Session is nil
// on exchange failure; per the orchestration contract the failure itself is
// surfaced only on the notification bus, since the caller that triggered the
// page load cannot await this handler.
type Outcome struct {
	Handled     bool
	Session     *session.Session
	Username    string
	CustomState string
}

// Config holds the redirect handler's collaborators.
type Config struct {
	Exchanger CodeExchanger
	Bus       events.Bus
	Storage   storage.Store
	// Credentials, when set, is exchanged for cloud credentials after a
	// successful sign-in.
	Credentials CredentialsExchanger
	// RedirectSignIn is the visible URL the browser is restored to after a
	// redirect has been handled, successfully or not, so a reload cannot
	// replay the spent code.
	RedirectSignIn string
	// RestoreURL performs the history-replace. Optional; defaults to a
	// no-op for non-browser hosts.
	RestoreURL func(target string)
}

// Handler processes post-redirect callback URLs.
type Handler struct {
	cfg      Config
	log      zerolog.Logger
	consumed *cache.Cache

	mu         sync.Mutex
	inProgress bool
	done       chan struct{}
}

// Option modifies a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler initializes a redirect handler with required dependencies.
func NewHandler(cfg Config, options ...Option) (*Handler, error) {
	if cfg.Exchanger == nil {
		return nil, errors.New("[NewHandler] Exchanger is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("[NewHandler] Bus is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("[NewHandler] Storage is required")
	}
	if cfg.RestoreURL == nil {
		cfg.RestoreURL = func(string) {}
	}

	h := &Handler{
		cfg:      cfg,
		log:      zerolog.Nop(),
		consumed: cache.New(consumedURLTTL, 2*consumedURLTTL),
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// StartSignIn stashes the diagnostic value, builds the OAuth state parameter
// (with customState embedded after the delimiter when present) and returns
// the provider authorization URL for the host to redirect to.
func (h *Handler) StartSignIn(customState, diagnostic string) (string, error) {
	state := randomState()
	if customState != "" {
		state = state + customStateDelimiter + customState
	}
	if diagnostic != "" {
		h.cfg.Storage.Set(diagnosticKey, diagnostic)
	}
	authURL, err := h.cfg.Exchanger.AuthorizeURL(state)
	if err != nil {
		return "", errors.Wrap(err, "[Handler.StartSignIn] build authorization URL")
	}
	return authURL, nil
}

// SignOutRedirect performs the provider's hosted sign-out. It implements
// session.HostedSignOut so the coordinator can use it during cleanup.
func (h *Handler) SignOutRedirect(ctx context.Context) error {
	return h.cfg.Exchanger.SignOut(ctx)
}

// AwaitRedirect blocks until any in-progress redirect has resolved, the
// ceiling elapses, or ctx is cancelled. Callers proceed best-effort after a
// timeout.
func (h *Handler) AwaitRedirect(ctx context.Context, ceiling time.Duration) {
	h.mu.Lock()
	if !h.inProgress {
		h.mu.Unlock()
		return
	}
	done := h.done
	h.mu.Unlock()

	select {
	case <-done:
	case <-time.After(ceiling):
		h.log.Warn().Dur("ceiling", ceiling).Msg("gave up waiting for redirect to resolve")
	case <-ctx.Done():
	}
}

// HandleRedirect processes one callback URL. A URL that carries no code,
// token, or error is ignored. Each physical URL is handled at most once, and
// a call arriving while another redirect is being processed is a no-op.
// Exchange failures are never returned: they are dispatched on the bus after
// the visible URL has been restored.
func (h *Handler) HandleRedirect(ctx context.Context, rawURL string) *Outcome {
	params, relevant := classify(rawURL)
	if !relevant {
		return &Outcome{}
	}

	h.mu.Lock()
	if h.inProgress {
		h.mu.Unlock()
		return &Outcome{}
	}
	// Consume the URL before any asynchronous work so overlapping
	// invocations of the same redirect cannot both proceed.
	if _, seen := h.consumed.Get(rawURL); seen {
		h.mu.Unlock()
		return &Outcome{}
	}
	h.consumed.Set(rawURL, struct{}{}, cache.DefaultExpiration)
	h.inProgress = true
	h.done = make(chan struct{})
	h.mu.Unlock()

	defer h.finish()

	if diagnostic, ok := h.cfg.Storage.Get(diagnosticKey); ok {
		h.cfg.Storage.Remove(diagnosticKey)
		h.log.Debug().Str("diagnostic", diagnostic).Msg("cleared sign-in diagnostic value")
	}

	if errParam := params.Get("error"); errParam != "" {
		h.dispatchFailure(errors.Errorf("authorization error: %s: %s", errParam, params.Get("error_description")))
		return &Outcome{Handled: true}
	}

	res, err := h.cfg.Exchanger.ExchangeCode(ctx, rawURL)
	if err != nil {
		h.dispatchFailure(errors.Wrap(err, "code exchange"))
		return &Outcome{Handled: true}
	}

	sess, err := session.New(res.IDToken, res.AccessToken, res.RefreshToken)
	if err != nil {
		h.dispatchFailure(errors.Wrap(err, "rebuild session"))
		return &Outcome{Handled: true}
	}

	if h.cfg.Credentials != nil {
		if err := h.cfg.Credentials.Exchange(ctx, sess); err != nil {
			h.log.Warn().Err(err).Msg("cloud credential exchange failed after hosted sign-in")
		}
	}

	username := sess.Claims().Username
	h.cfg.RestoreURL(h.cfg.RedirectSignIn)

	h.cfg.Bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.SignIn,
		Message: "hosted sign-in completed",
		Data:    username,
	})
	h.cfg.Bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.HostedSignIn,
		Message: "hosted UI sign-in completed",
		Data:    username,
	})

	outcome := &Outcome{Handled: true, Session: sess, Username: username}
	if state := res.State; strings.Contains(state, customStateDelimiter) {
		custom := state[strings.Index(state, customStateDelimiter)+1:]
		outcome.CustomState = custom
		h.cfg.Bus.Dispatch(events.ChannelAuth, events.Event{
			Name:    events.CustomOAuthState,
			Message: "custom OAuth state returned",
			Data:    custom,
		})
	}
	return outcome
}

// finish clears the in-progress flag and wakes every AwaitRedirect waiter,
// regardless of how the redirect resolved.
func (h *Handler) finish() {
	h.mu.Lock()
	h.inProgress = false
	done := h.done
	h.done = nil
	h.mu.Unlock()

	if done != nil {
		close(done)
	}
	h.cfg.Bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.RedirectResolved,
		Message: "redirect processing finished",
	})
}

// dispatchFailure restores the visible URL and reports the failure on the
// bus. Nothing is returned to a caller: nobody awaits a page load.
func (h *Handler) dispatchFailure(err error) {
	h.log.Error().Err(err).Msg("hosted sign-in failed")
	h.cfg.RestoreURL(h.cfg.RedirectSignIn)

	for _, name := range []string{events.SignInFailure, events.HostedSignInFailure, events.CustomStateFailure} {
		h.cfg.Bus.Dispatch(events.ChannelAuth, events.Event{
			Name:    name,
			Message: "hosted sign-in failed",
			Data:    err,
		})
	}
}

// classify extracts the merged query and fragment parameters of rawURL and
// reports whether they mark it as an auth redirect (a code, token, or error
// is present in either component).
func classify(rawURL string) (url.Values, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}

	params := u.Query()
	if fragment, err := url.ParseQuery(u.Fragment); err == nil {
		for key, values := range fragment {
			for _, v := range values {
				params.Add(key, v)
			}
		}
	}

	if params.Get("code") == "" && params.Get("access_token") == "" && params.Get("error") == "" {
		return nil, false
	}
	return params, true
}
