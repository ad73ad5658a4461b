// Package credentials defines the contract for the subsystem that exchanges
// an authenticated session for short-lived cloud-provider credentials. The
// exchange itself is owned by the host application; the orchestration layer
// only decides when to exchange and when to clear.
package credentials

import (
	"context"

	"github.com/veridianlabs/go-auth-client/session"
)

// Exchanger trades a session for cloud credentials.
type Exchanger interface {
	// Exchange obtains fresh credentials for the session, replacing any
	// previously held ones.
	Exchange(ctx context.Context, sess *session.Session) error
	// Clear drops any held credentials.
	Clear(ctx context.Context) error
}
