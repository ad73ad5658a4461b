package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/storage"
)

// Storage keys recording auto sign-in state across restarts.
const (
	autoSignInKey     = "auth.autoSignIn"
	pollingStartedKey = "auth.autoSignIn.polling"
)

// SignUpRequest registers a new account. With AutoSignIn set the client
// completes sign-in transparently once the account is confirmed; any
// failure on that path is reported on the bus, never to this call.
type SignUpRequest struct {
	Username       string
	Password       string
	Attributes     []attributes.Attribute
	ClientMetadata map[string]string
	AutoSignIn     bool
}

// autoSignInRequest is the credential set retained in memory for the
// transparent sign-in. Only the intent flag is durable; credentials never
// touch storage.
type autoSignInRequest struct {
	username string
	password string
}

// SignUp registers a new account with the provider and, when requested,
// arranges the auto sign-in strategy matching the application's
// confirmation flow.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*provider.SignUpResult, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, EmptyUsernameErr
	}
	if req.Password == "" {
		return nil, EmptyPasswordErr
	}

	result, err := c.provider.SignUp(ctx, provider.SignUpRequest{
		Username:       req.Username,
		Password:       req.Password,
		Attributes:     req.Attributes,
		ClientMetadata: req.ClientMetadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.SignUp] provider sign-up")
	}

	if req.AutoSignIn {
		c.store.Set(autoSignInKey, "true")
		c.scheduleAutoSignIn(autoSignInRequest{username: req.Username, password: req.Password}, result.UserConfirmed)
	}
	return result, nil
}

// ConfirmSignUp confirms a registration with the delivered code and
// broadcasts the confirmation, which is what triggers the event-driven auto
// sign-in strategy.
func (c *Client) ConfirmSignUp(ctx context.Context, username, code string) error {
	if strings.TrimSpace(username) == "" {
		return EmptyUsernameErr
	}
	if strings.TrimSpace(code) == "" {
		return EmptyCodeErr
	}

	if err := c.provider.ConfirmRegistration(ctx, username, code); err != nil {
		return errors.Wrap(err, "[Client.ConfirmSignUp] confirm registration")
	}

	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.ConfirmSignUp,
		Message: "sign-up confirmed",
		Data:    username,
	})
	return nil
}

// scheduleAutoSignIn picks one of the three strategies: run immediately for
// accounts the provider already confirmed, poll for link-based confirmation,
// or wait for the confirmSignUp event otherwise.
func (c *Client) scheduleAutoSignIn(req autoSignInRequest, confirmed bool) {
	switch {
	case confirmed:
		go c.runAutoSignIn(context.Background(), req)

	case c.confirmation == ConfirmByLink:
		c.store.Set(pollingStartedKey, "true")
		go c.pollAutoSignIn(context.Background(), req)

	default:
		c.listenAutoSignIn(req)
	}
}

// listenAutoSignIn registers a one-shot confirmSignUp listener that runs the
// sign-in once and deregisters itself through its subscription handle.
func (c *Client) listenAutoSignIn(req autoSignInRequest) {
	ready := make(chan struct{})
	var once sync.Once
	var sub events.Subscription
	sub = c.bus.Subscribe(events.ChannelAuth, func(ev events.Event) {
		if ev.Name != events.ConfirmSignUp {
			return
		}
		once.Do(func() {
			<-ready
			sub.Unsubscribe()
			go c.runAutoSignIn(context.Background(), req)
		})
	})
	close(ready)
}

// runAutoSignIn performs one sign-in attempt and terminates the auto
// sign-in, clearing the stored intent on both outcomes. Failures never
// propagate to the registration caller.
func (c *Client) runAutoSignIn(ctx context.Context, req autoSignInRequest) {
	user, err := c.SignIn(ctx, req.username, req.password)
	if err != nil {
		c.failAutoSignIn(err)
		return
	}
	c.finishAutoSignIn(user)
}

// pollAutoSignIn retries sign-in on a fixed interval until the account is
// confirmed, treating not-yet-confirmed failures as "not yet". Reaching the
// ceiling dispatches exactly one timeout failure.
func (c *Client) pollAutoSignIn(ctx context.Context, req autoSignInRequest) {
	err := poll(ctx, c.pollInterval, c.pollCeiling, func(ctx context.Context) (bool, error) {
		user, err := c.SignIn(ctx, req.username, req.password)
		if err != nil {
			if provider.IsUserNotConfirmed(err) {
				return false, nil
			}
			return false, err
		}
		c.finishAutoSignIn(user)
		return true, nil
	})
	if err != nil {
		c.failAutoSignIn(err)
	}
}

func (c *Client) finishAutoSignIn(user *User) {
	c.clearAutoSignInState()
	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.AutoSignIn,
		Message: "auto sign-in completed",
		Data:    user,
	})
}

func (c *Client) failAutoSignIn(err error) {
	c.clearAutoSignInState()
	c.log.Warn().Err(err).Msg("auto sign-in failed")
	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.AutoSignInFailure,
		Message: "auto sign-in failed",
		Data:    err,
	})
}

func (c *Client) clearAutoSignInState() {
	c.store.Remove(autoSignInKey)
	c.store.Remove(pollingStartedKey)
}

// recoverStaleAutoSignIn handles a process restart that interrupted the
// polling strategy: the abandoned attempt is reported once and its durable
// state cleared so no flag outlives every terminating path.
func (c *Client) recoverStaleAutoSignIn(ctx context.Context) {
	if err := storage.Sync(ctx, c.store); err != nil {
		c.log.Warn().Err(err).Msg("storage sync failed during auto sign-in recovery")
		return
	}
	if _, stale := c.store.Get(pollingStartedKey); !stale {
		return
	}
	c.failAutoSignIn(errors.New("auto sign-in polling abandoned by process restart"))
}
