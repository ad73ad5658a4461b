package oidcclient

import "net/url"

// grantType selects the token endpoint grant used for a request.
type grantType string

const (
	// passwordGrant trades the user's credentials directly for tokens
	// (the OAuth2 resource owner password grant).
	passwordGrant grantType = "password"

	// refreshTokenGrant trades a refresh token for a new token set,
	// typically rotating the refresh token.
	refreshTokenGrant grantType = "refresh_token"
)

// tokenRequest holds the parameters for one token endpoint call.
type tokenRequest struct {
	Grant        grantType
	ClientID     string
	ClientSecret string
	Scope        string

	// Username and Password are set for the password grant only.
	Username string
	Password string

	// RefreshToken is set for the refresh grant only.
	RefreshToken string
}

// values encodes the request as the form body the token endpoint expects.
func (r tokenRequest) values() url.Values {
	v := url.Values{}
	v.Set("grant_type", string(r.Grant))
	v.Set("client_id", r.ClientID)
	if r.ClientSecret != "" {
		v.Set("client_secret", r.ClientSecret)
	}
	if r.Scope != "" {
		v.Set("scope", r.Scope)
	}
	switch r.Grant {
	case passwordGrant:
		v.Set("username", r.Username)
		v.Set("password", r.Password)
	case refreshTokenGrant:
		v.Set("refresh_token", r.RefreshToken)
	}
	return v
}

// tokenResponse is the token endpoint response format defined in RFC 6749.
// IdToken is present when the "openid" scope was granted.
type tokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	IdToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenError is the error response format defined in RFC 6749 section 5.2.
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}
