package hostedui

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Exchanger is the default CodeExchanger, built on the standard oauth2
// authorization-code flow with PKCE and OIDC ID-token verification.
type Exchanger struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier

	// endSessionEndpoint comes from the provider's discovery document and
	// may be empty for providers that do not advertise one.
	endSessionEndpoint string
	redirectSignOut    string

	// open performs the actual browser navigation for sign-out. Injected
	// because a library cannot assume a browser environment.
	open func(url string) error

	mu           sync.Mutex
	codeVerifier string
}

// ExchangerConfig configures the default exchanger.
type ExchangerConfig struct {
	IssuerURL       string
	ClientID        string
	ClientSecret    string
	RedirectSignIn  string
	RedirectSignOut string
	Scopes          []string
	// OpenURL navigates the user agent, used for the hosted sign-out
	// redirect. Optional; defaults to a no-op.
	OpenURL func(url string) error
}

// NewExchanger discovers the provider's endpoints and builds the default
// code exchanger.
func NewExchanger(ctx context.Context, cfg ExchangerConfig) (*Exchanger, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[NewExchanger] IssuerURL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[NewExchanger] ClientID is required")
	}
	if cfg.RedirectSignIn == "" {
		return nil, errors.New("[NewExchanger] RedirectSignIn is required")
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewExchanger] OIDC discovery")
	}

	var discovered struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&discovered); err != nil {
		return nil, errors.Wrap(err, "[NewExchanger] discovery claims")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	e := &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			RedirectURL:  cfg.RedirectSignIn,
			Scopes:       scopes,
		},
		verifier:           oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		endSessionEndpoint: discovered.EndSessionEndpoint,
		redirectSignOut:    cfg.RedirectSignOut,
		open:               cfg.OpenURL,
	}
	if e.open == nil {
		e.open = func(string) error { return nil }
	}
	return e, nil
}

// AuthorizeURL builds the provider authorization URL with a fresh PKCE
// challenge. The matching verifier is held until the next ExchangeCode call.
func (e *Exchanger) AuthorizeURL(state string) (string, error) {
	verifier := generateRandomString(32)

	e.mu.Lock()
	e.codeVerifier = verifier
	e.mu.Unlock()

	return e.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ExchangeCode trades the code in the callback URL for a verified token
// triple.
func (e *Exchanger) ExchangeCode(ctx context.Context, callbackURL string) (*ExchangeResult, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.ExchangeCode] parse callback URL")
	}
	code := u.Query().Get("code")
	if code == "" {
		return nil, errors.New("[Exchanger.ExchangeCode] callback URL has no code")
	}

	e.mu.Lock()
	verifier := e.codeVerifier
	e.codeVerifier = ""
	e.mu.Unlock()

	token, err := e.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.ExchangeCode] token exchange")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[Exchanger.ExchangeCode] no ID token in response")
	}
	if _, err := e.verifier.Verify(ctx, rawIDToken); err != nil {
		return nil, errors.Wrap(err, "[Exchanger.ExchangeCode] ID token verification")
	}

	return &ExchangeResult{
		IDToken:      rawIDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		State:        u.Query().Get("state"),
	}, nil
}

// SignOut navigates to the provider's end-session endpoint when one was
// discovered.
func (e *Exchanger) SignOut(ctx context.Context) error {
	if e.endSessionEndpoint == "" {
		return nil
	}
	target, err := url.Parse(e.endSessionEndpoint)
	if err != nil {
		return errors.Wrap(err, "[Exchanger.SignOut] parse end-session endpoint")
	}
	q := target.Query()
	q.Set("client_id", e.oauth.ClientID)
	if e.redirectSignOut != "" {
		q.Set("post_logout_redirect_uri", e.redirectSignOut)
	}
	target.RawQuery = q.Encode()
	return e.open(target.String())
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a PKCE code challenge from a verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// randomState builds the CSRF portion of the OAuth state parameter. Hex
// keeps it free of the delimiter that separates embedded custom state.
func randomState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
