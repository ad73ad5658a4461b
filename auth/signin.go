package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/internal/utils"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/session"
)

// SignIn starts a password-based sign-in attempt. The returned user handle
// either carries a session (terminal success) or a pending challenge the
// caller must answer through one of the challenge-response methods.
//
// Only one password-based attempt may be in flight per Client; a second
// concurrent attempt fails immediately with SignInPendingErr without
// touching the provider.
func (c *Client) SignIn(ctx context.Context, username, password string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, EmptyUsernameErr
	}
	if password == "" {
		return nil, EmptyPasswordErr
	}

	if !c.beginPasswordSignIn() {
		return nil, SignInPendingErr
	}
	defer c.endPasswordSignIn()

	user := NewUser(username)
	result, err := c.provider.Authenticate(ctx, provider.Credentials{
		Username: username,
		Password: password,
		Flow:     provider.FlowPassword,
	})
	return c.settle(ctx, user, result, err)
}

// SignInCustom starts a passwordless custom-auth sign-in attempt. Custom
// attempts are not subject to the single-pending-attempt restriction.
func (c *Client) SignInCustom(ctx context.Context, username string, clientMetadata map[string]string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, EmptyUsernameErr
	}

	user := NewUser(username)
	result, err := c.provider.Authenticate(ctx, provider.Credentials{
		Username:       username,
		Flow:           provider.FlowCustom,
		ClientMetadata: clientMetadata,
	})
	return c.settle(ctx, user, result, err)
}

// ConfirmSignIn answers an SMS MFA challenge.
func (c *Client) ConfirmSignIn(ctx context.Context, user *User, code string) (*User, error) {
	return c.answerChallenge(ctx, user, provider.ChallengeSMSMFA, code, "")
}

// ConfirmSignInWithTOTP answers a software-token MFA challenge.
func (c *Client) ConfirmSignInWithTOTP(ctx context.Context, user *User, code string) (*User, error) {
	return c.answerChallenge(ctx, user, provider.ChallengeTOTP, code, "")
}

// CompleteNewPassword answers a forced password-reset challenge.
func (c *Client) CompleteNewPassword(ctx context.Context, user *User, newPassword string) (*User, error) {
	if newPassword == "" {
		return nil, EmptyPasswordErr
	}
	return c.answerChallenge(ctx, user, provider.ChallengeNewPasswordRequired, "", newPassword)
}

// SendCustomChallengeAnswer answers a custom challenge.
func (c *Client) SendCustomChallengeAnswer(ctx context.Context, user *User, answer string) (*User, error) {
	return c.answerChallenge(ctx, user, provider.ChallengeCustom, answer, "")
}

// SelectMFAType answers a select-MFA-type challenge with the chosen factor.
func (c *Client) SelectMFAType(ctx context.Context, user *User, mfaType string) (*User, error) {
	return c.answerChallenge(ctx, user, provider.ChallengeSelectMFAType, mfaType, "")
}

// ConfirmMFASetup answers an MFA-setup challenge with the code produced by
// the newly associated software token.
func (c *Client) ConfirmMFASetup(ctx context.Context, user *User, code string) (*User, error) {
	return c.answerChallenge(ctx, user, provider.ChallengeMFASetup, code, "")
}

func (c *Client) answerChallenge(ctx context.Context, user *User, kind provider.ChallengeKind, answer, newPassword string) (*User, error) {
	if answer == "" && newPassword == "" {
		return nil, EmptyChallengeResponseErr
	}

	challenge := user.Challenge()
	if challenge == nil {
		return nil, NoPendingChallengeErr
	}
	if challenge.Kind != kind {
		return nil, errors.Wrapf(ChallengeMismatchErr, "[Client.answerChallenge] pending %s, answering %s", challenge.Kind, kind)
	}

	result, err := c.provider.RespondToChallenge(ctx, provider.ChallengeResponse{
		Username:    user.Username(),
		Kind:        kind,
		Answer:      answer,
		NewPassword: newPassword,
		Session:     challenge.continuation,
	})
	return c.settle(ctx, user, result, err)
}

// settle applies one provider outcome to the attempt. Exactly one of
// success, failure, or challenge-pending is delivered per submission: a
// tokens result completes the sign-in, a challenge result parks the attempt
// on the handle, and an error terminates it with a failure event.
func (c *Client) settle(ctx context.Context, user *User, result *provider.AuthResult, err error) (*User, error) {
	if err != nil {
		c.bus.Dispatch(events.ChannelAuth, events.Event{
			Name:    events.SignInFailure,
			Message: "sign-in failed",
			Data:    err,
		})
		return nil, err
	}

	switch result.Kind {
	case provider.ResultChallenge:
		user.setChallenge(&PendingChallenge{
			Kind:         result.Challenge.Kind,
			Parameters:   result.Challenge.Parameters,
			continuation: result.Challenge.Session,
		})
		return user, nil

	case provider.ResultTokens:
		return c.completeSignIn(ctx, user, result.Tokens)

	default:
		return nil, errors.Errorf("[Client.settle] unexpected result kind %d", result.Kind)
	}
}

// completeSignIn finishes a successful attempt: the stale challenge marker
// is cleared, the session is exchanged for cloud credentials (failure
// tolerated), and the handle is enriched with the user's profile attributes
// before the sign-in is announced.
func (c *Client) completeSignIn(ctx context.Context, user *User, tokens *provider.Tokens) (*User, error) {
	user.clearChallenge()

	sess, err := session.New(tokens.IDToken, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		err = errors.Wrap(err, "[Client.completeSignIn] rebuild session")
		c.bus.Dispatch(events.ChannelAuth, events.Event{
			Name:    events.SignInFailure,
			Message: "sign-in failed",
			Data:    err,
		})
		return nil, err
	}
	user.SetCachedSession(sess)

	if c.creds != nil {
		if err := c.creds.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear stale cloud credentials")
		}
		if err := c.creds.Exchange(ctx, sess); err != nil {
			// Credential exchange failure does not fail the sign-in.
			c.log.Warn().Err(err).Msg("cloud credential exchange failed")
		}
	}

	if attrs, err := c.provider.GetUserAttributes(ctx, sess.AccessToken()); err != nil {
		c.log.Warn().Err(err).Str("username", user.Username()).Msg("failed to fetch user attributes")
	} else {
		user.setAttributes(attributes.ToMap(attrs))
	}

	c.setCurrentUser(user)
	c.log.Debug().
		Str("username", user.Username()).
		Str("email", utils.Value(sess.Claims().Email)).
		Msg("sign-in completed")
	c.bus.Dispatch(events.ChannelAuth, events.Event{
		Name:    events.SignIn,
		Message: "signed in",
		Data:    user.Username(),
	})
	return user, nil
}

func (c *Client) beginPasswordSignIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.passwordSignInPending {
		return false
	}
	c.passwordSignInPending = true
	return true
}

func (c *Client) endPasswordSignIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwordSignInPending = false
}
