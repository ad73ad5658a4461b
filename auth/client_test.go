package auth_test

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/go-auth-client/auth"
	"github.com/veridianlabs/go-auth-client/credentials/credfake"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/events/localbus"
	"github.com/veridianlabs/go-auth-client/hostedui"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/provider/providerfake"
	"github.com/veridianlabs/go-auth-client/storage/memstore"
)

func expiredTokens(t *testing.T) *provider.Tokens {
	t.Helper()
	exp := time.Now().Add(-time.Hour).Unix()
	return &provider.Tokens{
		IDToken: makeToken(t, jwtlib.MapClaims{
			"sub":                "user-sub-1",
			"preferred_username": testUsername,
			"exp":                exp,
		}),
		AccessToken: makeToken(t, jwtlib.MapClaims{
			"sub": "user-sub-1",
			"exp": exp,
		}),
		RefreshToken: "refresh-1",
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	f := setupClient(t)

	_, err := auth.New(auth.Config{Storage: f.store, Bus: f.bus})
	require.ErrorContains(t, err, "Provider is required")

	_, err = auth.New(auth.Config{Provider: f.provider, Bus: f.bus})
	require.ErrorContains(t, err, "Storage is required")

	_, err = auth.New(auth.Config{Provider: f.provider, Storage: f.store})
	require.ErrorContains(t, err, "Bus is required")
}

func TestCurrentUserWithoutSignIn(t *testing.T) {
	f := setupClient(t)

	_, err := f.client.CurrentUser(context.Background())
	require.ErrorIs(t, err, auth.NoCurrentUserErr)
}

func TestCurrentUserPropagatesStorageSyncError(t *testing.T) {
	f := setupClient(t)
	f.store.SyncFunc = func(ctx context.Context) error {
		return errors.New("replication offline")
	}

	_, err := f.client.CurrentUser(context.Background())
	require.ErrorContains(t, err, "replication offline")
}

func TestSessionReturnsCachedWhenValid(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}

	_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	sess, err := f.client.Session(context.Background())
	require.NoError(t, err)
	require.True(t, sess.Valid(time.Now()))
	require.Equal(t, 0, f.provider.Calls("RefreshSession"))
}

func TestSessionRefreshesExpiredTokens(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return &provider.AuthResult{Kind: provider.ResultTokens, Tokens: expiredTokens(t)}, nil
	}
	f.provider.RefreshSessionFn = func(ctx context.Context, username, refreshToken string) (*provider.Tokens, error) {
		require.Equal(t, testUsername, username)
		require.Equal(t, "refresh-1", refreshToken)
		return validTokens(t), nil
	}

	_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	sess, err := f.client.Session(context.Background())
	require.NoError(t, err)
	require.True(t, sess.Valid(time.Now()))
	require.Equal(t, 1, f.provider.Calls("RefreshSession"))
}

func TestSignOutLocal(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	clears := f.creds.Clears()

	require.NoError(t, f.client.SignOut(context.Background(), false))

	require.Equal(t, 0, f.provider.Calls("SignOut"))
	require.Equal(t, clears+1, f.creds.Clears())
	require.Nil(t, user.CachedSession())

	ev, ok := f.events.last(events.SignOut)
	require.True(t, ok)
	require.Equal(t, testUsername, ev.Data)

	_, err = f.client.CurrentUser(context.Background())
	require.ErrorIs(t, err, auth.NoCurrentUserErr)
}

func TestSignOutGlobalRevokesWithProvider(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}

	user, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	wantToken := user.CachedSession().AccessToken()

	var revoked string
	f.provider.SignOutFn = func(ctx context.Context, accessToken string) error {
		revoked = accessToken
		return nil
	}

	require.NoError(t, f.client.SignOut(context.Background(), true))
	require.Equal(t, 1, f.provider.Calls("SignOut"))
	require.Equal(t, wantToken, revoked)
}

func TestSignOutWithoutCurrentUserIsNoOp(t *testing.T) {
	f := setupClient(t)

	require.NoError(t, f.client.SignOut(context.Background(), true))
	require.Equal(t, 0, f.provider.Calls("SignOut"))
	require.Equal(t, 0, f.events.count(events.SignOut))
}

func TestSignOutGlobalProviderFailure(t *testing.T) {
	f := setupClient(t)
	f.provider.AuthenticateFn = func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
		return tokensResult(t), nil
	}
	f.provider.SignOutFn = func(ctx context.Context, accessToken string) error {
		return errors.New("revocation unavailable")
	}

	_, err := f.client.SignIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)

	err = f.client.SignOut(context.Background(), true)
	require.ErrorContains(t, err, "revocation unavailable")

	// Local state is dropped even when remote revocation fails.
	_, err = f.client.CurrentUser(context.Background())
	require.ErrorIs(t, err, auth.NoCurrentUserErr)
}

func TestHostedUINotConfigured(t *testing.T) {
	f := setupClient(t)

	_, err := f.client.StartHostedSignIn("state", "")
	require.ErrorIs(t, err, auth.HostedUINotConfiguredErr)

	_, err = f.client.CompleteHostedSignIn(context.Background(), "https://app.example.com/?code=ABC&state=XYZ")
	require.ErrorIs(t, err, auth.HostedUINotConfiguredErr)
}

// stubExchanger is the minimal CodeExchanger for client-level hosted tests.
type stubExchanger struct {
	signOuts int
	result   *hostedui.ExchangeResult
}

func (s *stubExchanger) AuthorizeURL(state string) (string, error) {
	return "https://auth.example.com/authorize?state=" + state, nil
}

func (s *stubExchanger) ExchangeCode(ctx context.Context, callbackURL string) (*hostedui.ExchangeResult, error) {
	return s.result, nil
}

func (s *stubExchanger) SignOut(ctx context.Context) error {
	s.signOuts++
	return nil
}

func setupHostedClient(t *testing.T) (*fixture, *stubExchanger) {
	t.Helper()

	f := &fixture{
		provider: providerfake.New(),
		store:    memstore.New(),
		bus:      localbus.New(),
		creds:    credfake.New(),
		events:   &recorder{},
	}
	f.bus.Subscribe(events.ChannelAuth, f.events.record)

	tokens := validTokens(t)
	ex := &stubExchanger{result: &hostedui.ExchangeResult{
		IDToken:      tokens.IDToken,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}}
	handler, err := hostedui.NewHandler(hostedui.Config{
		Exchanger:      ex,
		Bus:            f.bus,
		Storage:        f.store,
		Credentials:    f.creds,
		RedirectSignIn: "https://app.example.com/",
	})
	require.NoError(t, err)

	client, err := auth.New(auth.Config{
		Provider:    f.provider,
		Storage:     f.store,
		Bus:         f.bus,
		Credentials: f.creds,
		HostedUI:    handler,
	})
	require.NoError(t, err)
	f.client = client
	return f, ex
}

func TestCompleteHostedSignInAdoptsUser(t *testing.T) {
	f, _ := setupHostedClient(t)

	outcome, err := f.client.CompleteHostedSignIn(context.Background(), "https://app.example.com/?code=ABC&state=XYZ")
	require.NoError(t, err)
	require.True(t, outcome.Handled)
	require.NotNil(t, outcome.Session)

	user, err := f.client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, testUsername, user.Username())
	require.True(t, user.ViaHostedUI())
	require.NotNil(t, user.CachedSession())
}

func TestSignOutAfterHostedSignInRedirects(t *testing.T) {
	f, ex := setupHostedClient(t)

	_, err := f.client.CompleteHostedSignIn(context.Background(), "https://app.example.com/?code=ABC&state=XYZ")
	require.NoError(t, err)

	require.NoError(t, f.client.SignOut(context.Background(), false))
	require.Equal(t, 1, ex.signOuts)
	// The provider's hosted sign-out page reports completion, not the bus.
	require.Equal(t, 0, f.events.count(events.SignOut))
}
