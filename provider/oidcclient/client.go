// Package oidcclient implements provider.Client against a standards-only
// OIDC provider using the direct grants of RFC 6749: the password grant for
// sign-in, the refresh grant for session renewal, the userinfo endpoint for
// attributes, and RFC 7009 revocation for global sign-out.
//
// Plain OIDC has no challenge, registration, or device protocol; those
// operations return a classified error so the orchestration layer reports
// them cleanly. Providers with richer protocols supply their own
// provider.Client.
package oidcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/provider"
)

const defaultTimeout = 30 * time.Second

// Config holds the provider endpoints and client registration.
type Config struct {
	// TokenURL is the token endpoint. Required.
	TokenURL string
	// RevokeURL is the RFC 7009 revocation endpoint. Optional; SignOut is
	// a no-op without it.
	RevokeURL string
	// UserInfoURL is the OIDC userinfo endpoint. Optional; attribute
	// fetches fail without it.
	UserInfoURL string

	ClientID     string
	ClientSecret string
	// Scopes are requested on every password grant.
	Scopes []string

	// HTTPClient overrides the default client, e.g. for custom TLS.
	HTTPClient *http.Client
}

// Client is a direct-grant OIDC provider client.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// Option modifies a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New initializes a Client with required dependencies.
func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("[oidcclient.New] TokenURL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcclient.New] ClientID is required")
	}

	c := &Client{
		cfg:  cfg,
		http: cfg.HTTPClient,
		log:  zerolog.Nop(),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Authenticate signs in with the password grant. The custom flow has no
// standard OIDC equivalent.
func (c *Client) Authenticate(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
	if creds.Flow == provider.FlowCustom {
		return nil, unsupported("custom authentication flow")
	}

	tokens, err := c.token(ctx, tokenRequest{
		Grant:        passwordGrant,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Scope:        strings.Join(c.cfg.Scopes, " "),
		Username:     creds.Username,
		Password:     creds.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Authenticate] password grant")
	}
	return &provider.AuthResult{Kind: provider.ResultTokens, Tokens: tokens}, nil
}

// RespondToChallenge always fails: the password grant never issues
// challenges.
func (c *Client) RespondToChallenge(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error) {
	return nil, unsupported("challenge responses")
}

// RefreshSession renews the token set with the refresh grant.
func (c *Client) RefreshSession(ctx context.Context, username, refreshToken string) (*provider.Tokens, error) {
	tokens, err := c.token(ctx, tokenRequest{
		Grant:        refreshTokenGrant,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.RefreshSession] refresh grant for %s", username)
	}
	// Providers that do not rotate refresh tokens omit the field.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (c *Client) SignUp(ctx context.Context, req provider.SignUpRequest) (*provider.SignUpResult, error) {
	return nil, unsupported("self-service registration")
}

func (c *Client) ConfirmRegistration(ctx context.Context, username, code string) error {
	return unsupported("registration confirmation")
}

// GetUserAttributes fetches the userinfo claims and flattens them into the
// provider attribute shape.
func (c *Client) GetUserAttributes(ctx context.Context, accessToken string) ([]attributes.Attribute, error) {
	if c.cfg.UserInfoURL == "" {
		return nil, unsupported("userinfo (no endpoint configured)")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.GetUserAttributes] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, provider.NewError(provider.CodeNetwork, err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, provider.NewError(provider.CodeTokenRevoked, "userinfo rejected the access token")
		}
		return nil, provider.NewError(provider.CodeInternal, fmt.Sprintf("userinfo returned %d", res.StatusCode))
	}

	var claims map[string]any
	if err := json.NewDecoder(res.Body).Decode(&claims); err != nil {
		return nil, errors.Wrap(err, "[Client.GetUserAttributes] decode userinfo")
	}

	attrs := make([]attributes.Attribute, 0, len(claims))
	for name, value := range claims {
		attrs = append(attrs, attributes.Attribute{Name: name, Value: claimString(value)})
	}
	return attrs, nil
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	return unsupported("password changes")
}

func (c *Client) SetMFAPreference(ctx context.Context, accessToken string, pref provider.MFAPreference) error {
	return unsupported("MFA preferences")
}

func (c *Client) ListDevices(ctx context.Context, accessToken string, limit int, paginationToken string) (*provider.DeviceList, error) {
	return nil, unsupported("device tracking")
}

func (c *Client) ConfirmDevice(ctx context.Context, accessToken, deviceKey, deviceName, passwordVerifier, salt string) error {
	return unsupported("device tracking")
}

func (c *Client) ForgetDevice(ctx context.Context, accessToken, deviceKey string) error {
	return unsupported("device tracking")
}

// SignOut revokes the access token. Without a revocation endpoint the call
// succeeds locally; tokens then simply age out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if c.cfg.RevokeURL == "" {
		c.log.Debug().Msg("no revocation endpoint configured, skipping remote sign-out")
		return nil
	}

	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Client.SignOut] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return provider.NewError(provider.CodeNetwork, err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return provider.NewError(provider.CodeInternal, fmt.Sprintf("revocation returned %d", res.StatusCode))
	}
	return nil
}

// token performs one token endpoint call and maps the response onto the
// provider's token and error shapes.
func (c *Client) token(ctx context.Context, treq tokenRequest) (*provider.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(treq.values().Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, provider.NewError(provider.CodeNetwork, err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, provider.NewError(provider.CodeNetwork, err.Error())
	}

	if res.StatusCode != http.StatusOK {
		return nil, c.tokenFailure(treq.Grant, res.StatusCode, body)
	}

	var tres tokenResponse
	if err := json.Unmarshal(body, &tres); err != nil {
		return nil, errors.Wrap(err, "decode token response")
	}
	if tres.AccessToken == "" {
		return nil, provider.NewError(provider.CodeInternal, "token response carried no access token")
	}

	return &provider.Tokens{
		IDToken:      tres.IdToken,
		AccessToken:  tres.AccessToken,
		RefreshToken: tres.RefreshToken,
	}, nil
}

// tokenFailure maps an RFC 6749 error response onto the provider error
// taxonomy. invalid_grant means bad credentials on the password grant and an
// expired or revoked token on the refresh grant.
func (c *Client) tokenFailure(grant grantType, status int, body []byte) error {
	var terr tokenError
	if err := json.Unmarshal(body, &terr); err != nil || terr.Code == "" {
		return provider.NewError(provider.CodeInternal, fmt.Sprintf("token endpoint returned %d", status))
	}

	c.log.Debug().Str("error", terr.Code).Str("grant", string(grant)).Msg("token endpoint rejected request")

	switch terr.Code {
	case "invalid_grant":
		if grant == refreshTokenGrant {
			return provider.NewError(provider.CodeRefreshTokenExpired, terr.Description)
		}
		return provider.NewError(provider.CodeNotAuthorized, terr.Description)
	case "access_denied", "unauthorized_client", "invalid_client":
		return provider.NewError(provider.CodeNotAuthorized, terr.Description)
	default:
		return provider.NewError(provider.CodeInternal, terr.Code+": "+terr.Description)
	}
}

func claimString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func unsupported(what string) error {
	return provider.NewError(provider.CodeInternal, "not supported by a plain OIDC provider: "+what)
}
