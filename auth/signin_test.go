package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/auth"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/session"
)

func TestSignInValidation(t *testing.T) {
	f := setupClient(t)

	_, err := f.client.SignIn(context.Background(), "", testPassword)
	require.ErrorIs(t, err, auth.EmptyUsernameErr)

	_, err = f.client.SignIn(context.Background(), testUsername, "")
	require.ErrorIs(t, err, auth.EmptyPasswordErr)

	require.Equal(t, 0, f.provider.Calls("Authenticate"))
}

func TestSignInSuccess(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		require.Equal(t, testUsername, creds.Username)
		require.Equal(t, provider.FlowPassword, creds.Flow)
		return tokensResult(t), nil
	}
	f.provider.GetUserAttributesFn = func(ctx context.Context, accessToken string) ([]attributes.Attribute, error) {
		return []attributes.Attribute{{Name: "email", Value: "john.doe@example.com"}}, nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	require.NotNil(t, user.CachedSession())
	require.Nil(t, user.Challenge())
	require.Equal(t, "john.doe@example.com", user.Attributes()["email"])

	// Stale credentials are cleared before the new exchange.
	require.Equal(t, 1, f.creds.Clears())
	require.Equal(t, 1, f.creds.Exchanges())

	require.Equal(t, 1, f.events.count(events.SignIn))
	require.Equal(t, 0, f.events.count(events.SignInFailure))

	current, err := f.client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Same(t, user, current)
}

func TestSignInFailureDispatchesEvent(t *testing.T) {
	f := setupClient(t)
	want := provider.NewError(provider.CodeNotAuthorized, "incorrect username or password")
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return nil, want
	}

	_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.ErrorIs(t, err, want)

	require.Equal(t, 1, f.events.count(events.SignInFailure))
	_, err = f.client.CurrentUser(context.Background())
	require.ErrorIs(t, err, auth.NoCurrentUserErr)
}

func TestSignInChallengeAttachedToHandle(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return challengeResult(provider.ChallengeSMSMFA, map[string]string{"destination": "+61***000"}, "cont-1"), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	challenge := user.Challenge()
	require.NotNil(t, challenge)
	require.Equal(t, provider.ChallengeSMSMFA, challenge.Kind)
	require.Equal(t, "+61***000", challenge.Parameters["destination"])
	require.Nil(t, user.CachedSession())

	// No terminal event until the challenge is answered.
	require.Equal(t, 0, f.events.count(events.SignIn))
	require.Equal(t, 0, f.events.count(events.SignInFailure))
}

func TestConfirmSignInCompletesChallenge(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return challengeResult(provider.ChallengeSMSMFA, nil, "cont-1"), nil
	}
	f.provider.RespondToChallengeFn = func(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error) {
		require.Equal(t, provider.ChallengeSMSMFA, resp.Kind)
		require.Equal(t, "123456", resp.Answer)
		require.Equal(t, "cont-1", resp.Session)
		return tokensResult(t), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	user, err = f.client.ConfirmSignIn(context.Background(), user, "123456")
	require.NoError(t, err)

	require.Nil(t, user.Challenge())
	require.NotNil(t, user.CachedSession())
	require.Equal(t, 1, f.events.count(events.SignIn))
}

func TestChallengesMayChain(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return challengeResult(provider.ChallengeNewPasswordRequired, nil, "cont-1"), nil
	}
	f.provider.RespondToChallengeFn = func(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error) {
		switch resp.Kind {
		case provider.ChallengeNewPasswordRequired:
			require.Equal(t, "newPassword456", resp.NewPassword)
			return challengeResult(provider.ChallengeSMSMFA, nil, "cont-2"), nil
		case provider.ChallengeSMSMFA:
			require.Equal(t, "cont-2", resp.Session)
			return tokensResult(t), nil
		default:
			t.Fatalf("unexpected challenge kind %s", resp.Kind)
			return nil, nil
		}
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.Equal(t, provider.ChallengeNewPasswordRequired, user.Challenge().Kind)

	user, err = f.client.CompleteNewPassword(context.Background(), user, "newPassword456")
	require.NoError(t, err)
	require.Equal(t, provider.ChallengeSMSMFA, user.Challenge().Kind)

	user, err = f.client.ConfirmSignIn(context.Background(), user, "123456")
	require.NoError(t, err)
	require.Nil(t, user.Challenge())
	require.NotNil(t, user.CachedSession())
}

func TestSecondPasswordSignInFailsImmediately(t *testing.T) {
	f := setupClient(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		if creds.Username == testUsername {
			close(entered)
			<-release
		}
		return tokensResult(t), nil
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
		firstDone <- err
	}()
	<-entered

	_, err := f.client.SignIn(context.Background(), "jane.doe", testPassword)
	require.ErrorIs(t, err, auth.SignInPendingErr)
	require.Equal(t, 1, f.provider.Calls("Authenticate"))

	close(release)
	require.NoError(t, <-firstDone)

	// The guard lifts once the attempt resolves.
	_, err = f.client.SignIn(context.Background(), "jane.doe", testPassword)
	require.NoError(t, err)
}

func TestCustomSignInNotSubjectToPendingGuard(t *testing.T) {
	f := setupClient(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		if creds.Flow == provider.FlowPassword {
			close(entered)
			<-release
			return tokensResult(t), nil
		}
		return challengeResult(provider.ChallengeCustom, nil, "cont-1"), nil
	}

	go f.client.SignIn(context.Background(), testUsername, testPassword)
	<-entered

	user, err := f.client.SignInCustom(context.Background(), "jane.doe", nil)
	require.NoError(t, err)
	require.Equal(t, provider.ChallengeCustom, user.Challenge().Kind)

	close(release)
}

func TestAnswerChallengeValidation(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return challengeResult(provider.ChallengeTOTP, nil, "cont-1"), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	_, err = f.client.ConfirmSignInWithTOTP(context.Background(), user, "")
	require.ErrorIs(t, err, auth.EmptyChallengeResponseErr)

	// Wrong responder for the pending challenge kind.
	_, err = f.client.ConfirmSignIn(context.Background(), user, "123456")
	require.ErrorIs(t, err, auth.ChallengeMismatchErr)

	// No challenge pending at all.
	fresh := auth.NewUser("jane.doe")
	_, err = f.client.ConfirmSignInWithTOTP(context.Background(), fresh, "123456")
	require.ErrorIs(t, err, auth.NoPendingChallengeErr)

	require.Equal(t, 0, f.provider.Calls("RespondToChallenge"))
}

func TestCredentialExchangeFailureDoesNotFailSignIn(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}
	f.creds.ExchangeFn = func(ctx context.Context, _ *session.Session) error {
		return provider.NewError(provider.CodeInternal, "identity pool unavailable")
	}

	_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.Equal(t, 1, f.events.count(events.SignIn))
}

func TestAttributeFetchFailureDoesNotFailSignIn(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}
	f.provider.GetUserAttributesFn = func(ctx context.Context, accessToken string) ([]attributes.Attribute, error) {
		return nil, provider.NewError(provider.CodeNetwork, "connection reset")
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.Empty(t, user.Attributes())
	require.Equal(t, 1, f.events.count(events.SignIn))
}

func TestSelectMFATypeAnswersChallenge(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return challengeResult(provider.ChallengeSelectMFAType, nil, "cont-1"), nil
	}
	f.provider.RespondToChallengeFn = func(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error) {
		require.Equal(t, "SOFTWARE_TOKEN_MFA", resp.Answer)
		return challengeResult(provider.ChallengeTOTP, nil, "cont-2"), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	user, err = f.client.SelectMFAType(context.Background(), user, "SOFTWARE_TOKEN_MFA")
	require.NoError(t, err)
	require.Equal(t, provider.ChallengeTOTP, user.Challenge().Kind)
}

func TestSignInResolvesExactlyOncePerSubmission(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}

	var wg sync.WaitGroup
	terminal := 0
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
			mu.Lock()
			defer mu.Unlock()
			if err == nil || err == auth.SignInPendingErr {
				terminal++
			}
		}()
	}
	wg.Wait()

	// Every attempt reached exactly one terminal action, and each successful
	// submission produced exactly one signIn event.
	require.Equal(t, 4, terminal)
	require.Equal(t, f.events.count(events.SignIn), f.provider.Calls("Authenticate"))

	// Give late dispatches a chance to surface before the final assertion.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, f.events.count(events.SignIn), f.provider.Calls("Authenticate"))
}
