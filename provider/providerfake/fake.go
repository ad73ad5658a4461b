// Package providerfake is a configurable in-memory provider.Client used by
// tests.
package providerfake

import (
	"context"
	"sync"

	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/provider"
)

// Fake implements provider.Client. Each call delegates to the corresponding
// Fn field when set and otherwise returns a zero-value success. Call counts
// are recorded per method name.
type Fake struct {
	mu    sync.Mutex
	calls map[string]int

	AuthenticateFn        func(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error)
	RespondToChallengeFn  func(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error)
	RefreshSessionFn      func(ctx context.Context, username, refreshToken string) (*provider.Tokens, error)
	SignUpFn              func(ctx context.Context, req provider.SignUpRequest) (*provider.SignUpResult, error)
	ConfirmRegistrationFn func(ctx context.Context, username, code string) error
	GetUserAttributesFn   func(ctx context.Context, accessToken string) ([]attributes.Attribute, error)
	ChangePasswordFn      func(ctx context.Context, accessToken, oldPassword, newPassword string) error
	SetMFAPreferenceFn    func(ctx context.Context, accessToken string, pref provider.MFAPreference) error
	ListDevicesFn         func(ctx context.Context, accessToken string, limit int, paginationToken string) (*provider.DeviceList, error)
	ConfirmDeviceFn       func(ctx context.Context, accessToken, deviceKey, deviceName, passwordVerifier, salt string) error
	ForgetDeviceFn        func(ctx context.Context, accessToken, deviceKey string) error
	SignOutFn             func(ctx context.Context, accessToken string) error
}

// New creates a fake provider client
func New() *Fake {
	return &Fake{calls: make(map[string]int)}
}

// Calls returns how many times the named method has been invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *Fake) Authenticate(ctx context.Context, creds provider.Credentials) (*provider.AuthResult, error) {
	f.record("Authenticate")
	if f.AuthenticateFn != nil {
		return f.AuthenticateFn(ctx, creds)
	}
	return &provider.AuthResult{Kind: provider.ResultTokens, Tokens: &provider.Tokens{}}, nil
}

func (f *Fake) RespondToChallenge(ctx context.Context, resp provider.ChallengeResponse) (*provider.AuthResult, error) {
	f.record("RespondToChallenge")
	if f.RespondToChallengeFn != nil {
		return f.RespondToChallengeFn(ctx, resp)
	}
	return &provider.AuthResult{Kind: provider.ResultTokens, Tokens: &provider.Tokens{}}, nil
}

func (f *Fake) RefreshSession(ctx context.Context, username, refreshToken string) (*provider.Tokens, error) {
	f.record("RefreshSession")
	if f.RefreshSessionFn != nil {
		return f.RefreshSessionFn(ctx, username, refreshToken)
	}
	return &provider.Tokens{}, nil
}

func (f *Fake) SignUp(ctx context.Context, req provider.SignUpRequest) (*provider.SignUpResult, error) {
	f.record("SignUp")
	if f.SignUpFn != nil {
		return f.SignUpFn(ctx, req)
	}
	return &provider.SignUpResult{}, nil
}

func (f *Fake) ConfirmRegistration(ctx context.Context, username, code string) error {
	f.record("ConfirmRegistration")
	if f.ConfirmRegistrationFn != nil {
		return f.ConfirmRegistrationFn(ctx, username, code)
	}
	return nil
}

func (f *Fake) GetUserAttributes(ctx context.Context, accessToken string) ([]attributes.Attribute, error) {
	f.record("GetUserAttributes")
	if f.GetUserAttributesFn != nil {
		return f.GetUserAttributesFn(ctx, accessToken)
	}
	return nil, nil
}

func (f *Fake) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	f.record("ChangePassword")
	if f.ChangePasswordFn != nil {
		return f.ChangePasswordFn(ctx, accessToken, oldPassword, newPassword)
	}
	return nil
}

func (f *Fake) SetMFAPreference(ctx context.Context, accessToken string, pref provider.MFAPreference) error {
	f.record("SetMFAPreference")
	if f.SetMFAPreferenceFn != nil {
		return f.SetMFAPreferenceFn(ctx, accessToken, pref)
	}
	return nil
}

func (f *Fake) ListDevices(ctx context.Context, accessToken string, limit int, paginationToken string) (*provider.DeviceList, error) {
	f.record("ListDevices")
	if f.ListDevicesFn != nil {
		return f.ListDevicesFn(ctx, accessToken, limit, paginationToken)
	}
	return &provider.DeviceList{}, nil
}

func (f *Fake) ConfirmDevice(ctx context.Context, accessToken, deviceKey, deviceName, passwordVerifier, salt string) error {
	f.record("ConfirmDevice")
	if f.ConfirmDeviceFn != nil {
		return f.ConfirmDeviceFn(ctx, accessToken, deviceKey, deviceName, passwordVerifier, salt)
	}
	return nil
}

func (f *Fake) ForgetDevice(ctx context.Context, accessToken, deviceKey string) error {
	f.record("ForgetDevice")
	if f.ForgetDeviceFn != nil {
		return f.ForgetDeviceFn(ctx, accessToken, deviceKey)
	}
	return nil
}

func (f *Fake) SignOut(ctx context.Context, accessToken string) error {
	f.record("SignOut")
	if f.SignOutFn != nil {
		return f.SignOutFn(ctx, accessToken)
	}
	return nil
}
