// Package credfake is an in-memory credentials.Exchanger used by tests.
package credfake

import (
	"context"
	"sync"

	"github.com/veridianlabs/go-auth-client/session"
)

// Fake records exchange and clear calls.
type Fake struct {
	mu sync.Mutex

	ExchangeFn func(ctx context.Context, sess *session.Session) error
	ClearFn    func(ctx context.Context) error

	exchanges int
	clears    int
	held      bool
}

// New creates a fake exchanger
func New() *Fake {
	return &Fake{}
}

func (f *Fake) Exchange(ctx context.Context, sess *session.Session) error {
	f.mu.Lock()
	f.exchanges++
	f.mu.Unlock()
	if f.ExchangeFn != nil {
		if err := f.ExchangeFn(ctx, sess); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.held = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Clear(ctx context.Context) error {
	f.mu.Lock()
	f.clears++
	f.held = false
	f.mu.Unlock()
	if f.ClearFn != nil {
		return f.ClearFn(ctx)
	}
	return nil
}

// Exchanges returns how many Exchange calls have been made.
func (f *Fake) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

// Clears returns how many Clear calls have been made.
func (f *Fake) Clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// Held reports whether credentials are currently held.
func (f *Fake) Held() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held
}
