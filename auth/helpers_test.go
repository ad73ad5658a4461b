package auth_test

import (
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/veridianlabs/go-auth-client/auth"
	"github.com/veridianlabs/go-auth-client/credentials/credfake"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/events/localbus"
	"github.com/veridianlabs/go-auth-client/provider"
	"github.com/veridianlabs/go-auth-client/provider/providerfake"
	"github.com/veridianlabs/go-auth-client/storage/memstore"
)

const (
	testUsername = "john.doe"
	testPassword = "password123"
)

// recorder captures everything dispatched on the auth channel.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) record(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

type fixture struct {
	provider *providerfake.Fake
	store    *memstore.Store
	bus      *localbus.Bus
	creds    *credfake.Fake
	events   *recorder
	client   *auth.Client
}

func setupClient(t *testing.T, options ...auth.Option) *fixture {
	t.Helper()

	f := &fixture{
		provider: providerfake.New(),
		store:    memstore.New(),
		bus:      localbus.New(),
		creds:    credfake.New(),
		events:   &recorder{},
	}
	f.bus.Subscribe(events.ChannelAuth, f.events.record)

	client, err := auth.New(auth.Config{
		Provider:    f.provider,
		Storage:     f.store,
		Bus:         f.bus,
		Credentials: f.creds,
	}, options...)
	require.NoError(t, err)
	f.client = client
	return f
}

func makeToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func validTokens(t *testing.T) *provider.Tokens {
	t.Helper()
	return &provider.Tokens{
		IDToken: makeToken(t, jwtlib.MapClaims{
			"sub":                "user-sub-1",
			"preferred_username": testUsername,
			"email":              "john.doe@example.com",
			"exp":                time.Now().Add(time.Hour).Unix(),
		}),
		AccessToken: makeToken(t, jwtlib.MapClaims{
			"sub":   "user-sub-1",
			"scope": "openid profile",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}),
		RefreshToken: "refresh-1",
	}
}

func tokensResult(t *testing.T) *provider.AuthResult {
	t.Helper()
	return &provider.AuthResult{Kind: provider.ResultTokens, Tokens: validTokens(t)}
}

func challengeResult(kind provider.ChallengeKind, params map[string]string, continuation string) *provider.AuthResult {
	return &provider.AuthResult{
		Kind: provider.ResultChallenge,
		Challenge: &provider.Challenge{
			Kind:       kind,
			Parameters: params,
			Session:    continuation,
		},
	}
}
