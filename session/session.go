// Package session holds the authenticated session value and the coordinator
// that refreshes it. A Session is immutable: refreshing produces a new value,
// never mutates one in place.
package session

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/veridianlabs/go-auth-client/internal/utils"
)

// Claims are the fields the orchestration layer reads off the token pair.
// Tokens are issued and signed by the provider; the client only extracts
// claims, it does not verify signatures.
type Claims struct {
	Subject   string
	Username  string
	Email     *string
	Scopes    []string
	ExpiresAt time.Time
}

// Session is the identity/access/refresh token triple representing an
// authenticated principal, plus the claims derived from it.
type Session struct {
	idToken      string
	accessToken  string
	refreshToken string
	claims       Claims
}

// New constructs a Session from a completed authentication exchange. The ID
// token must be a parseable JWT; the refresh token is opaque and may be
// empty for flows that do not issue one.
func New(idToken, accessToken, refreshToken string) (*Session, error) {
	claims, err := parseClaims(idToken, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[session.New] parse tokens")
	}
	return &Session{
		idToken:      idToken,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		claims:       claims,
	}, nil
}

func (s *Session) IDToken() string      { return s.idToken }
func (s *Session) AccessToken() string  { return s.accessToken }
func (s *Session) RefreshToken() string { return s.refreshToken }
func (s *Session) Claims() Claims       { return s.claims }

// Valid reports whether the session's tokens are still usable at now.
func (s *Session) Valid(now time.Time) bool {
	if s.claims.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(s.claims.ExpiresAt)
}

func parseClaims(idToken, accessToken string) (Claims, error) {
	parser := jwtlib.NewParser()

	idClaims := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, idClaims); err != nil {
		return Claims{}, errors.Wrap(err, "id token")
	}

	claims := Claims{}
	claims.Subject, _ = idClaims.GetSubject()
	claims.Username = usernameClaim(idClaims)
	if email, ok := idClaims["email"].(string); ok {
		claims.Email = utils.Ptr(email)
	}
	claims.ExpiresAt = expiry(idClaims)

	// Scopes and the effective expiry come from the access token when one
	// is present; the session is only as good as its shortest-lived token.
	if accessToken != "" {
		accessClaims := jwtlib.MapClaims{}
		if _, _, err := parser.ParseUnverified(accessToken, accessClaims); err != nil {
			return Claims{}, errors.Wrap(err, "access token")
		}
		if scope, ok := accessClaims["scope"].(string); ok && scope != "" {
			claims.Scopes = strings.Fields(scope)
		}
		if exp := expiry(accessClaims); !exp.IsZero() && (claims.ExpiresAt.IsZero() || exp.Before(claims.ExpiresAt)) {
			claims.ExpiresAt = exp
		}
	}

	return claims, nil
}

func usernameClaim(claims jwtlib.MapClaims) string {
	for _, key := range []string{"preferred_username", "username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	sub, _ := claims.GetSubject()
	return sub
}

func expiry(claims jwtlib.MapClaims) time.Time {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
