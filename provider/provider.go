// Package provider defines the contract for the hosted identity-provider
// client. The library never talks to the provider's wire protocol itself; it
// orchestrates around an implementation of Client supplied by the host
// application.
package provider

import (
	"context"
	"time"

	"github.com/veridianlabs/go-auth-client/attributes"
)

// Flow selects the authentication flow for a sign-in attempt.
type Flow string

const (
	// FlowPassword is username/password authentication.
	FlowPassword Flow = "password"
	// FlowCustom is a provider-defined challenge flow with no password.
	FlowCustom Flow = "custom"
)

// Credentials carries the initial sign-in request.
type Credentials struct {
	Username       string
	Password       string
	Flow           Flow
	ClientMetadata map[string]string
}

// Tokens is the identity/access/refresh token triple returned by a completed
// authentication exchange.
type Tokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// ResultKind tags an AuthResult.
type ResultKind int

const (
	// ResultTokens means authentication completed and Tokens is set.
	ResultTokens ResultKind = iota
	// ResultChallenge means the provider requires another step and
	// Challenge is set.
	ResultChallenge
)

// ChallengeKind enumerates the intermediate steps the provider may demand
// before a sign-in completes.
type ChallengeKind string

const (
	ChallengeCustom              ChallengeKind = "CUSTOM_CHALLENGE"
	ChallengeSMSMFA              ChallengeKind = "SMS_MFA"
	ChallengeMFASetup            ChallengeKind = "MFA_SETUP"
	ChallengeNewPasswordRequired ChallengeKind = "NEW_PASSWORD_REQUIRED"
	ChallengeTOTP                ChallengeKind = "SOFTWARE_TOKEN_MFA"
	ChallengeSelectMFAType       ChallengeKind = "SELECT_MFA_TYPE"
)

// Challenge is one intermediate step. Parameters are challenge-specific
// (delivery destination for SMS MFA, required attributes for a forced
// password change, the shared secret for MFA setup).
type Challenge struct {
	Kind       ChallengeKind
	Parameters map[string]string
	// Session is the provider's continuation token; it must be echoed back
	// in the ChallengeResponse that answers this challenge.
	Session string
}

// AuthResult is the tagged outcome of an authentication call. Exactly one of
// Tokens or Challenge is set, selected by Kind.
type AuthResult struct {
	Kind      ResultKind
	Tokens    *Tokens
	Challenge *Challenge
}

// ChallengeResponse answers a previously issued Challenge.
type ChallengeResponse struct {
	Username string
	Kind     ChallengeKind
	// Answer is the MFA code, custom challenge answer, or selected MFA type
	// depending on Kind.
	Answer string
	// NewPassword is set only for ChallengeNewPasswordRequired.
	NewPassword string
	// Session echoes Challenge.Session.
	Session        string
	ClientMetadata map[string]string
}

// SignUpRequest registers a new account.
type SignUpRequest struct {
	Username       string
	Password       string
	Attributes     []attributes.Attribute
	ClientMetadata map[string]string
}

// SignUpResult reports the registration outcome. Destination describes where
// the confirmation code or link was delivered, when one was sent.
type SignUpResult struct {
	UserConfirmed bool
	UserSub       string
	Destination   string
}

// MFAPreference selects which second factor the provider should demand.
type MFAPreference string

const (
	MFAPreferenceOff   MFAPreference = "NOMFA"
	MFAPreferenceSMS   MFAPreference = "SMS"
	MFAPreferenceTOTP  MFAPreference = "TOTP"
)

// Device is a remembered device registered against the user.
type Device struct {
	Key                   string
	Name                  string
	Attributes            []attributes.Attribute
	CreateDate            time.Time
	LastAuthenticatedDate time.Time
}

// DeviceList is one page of remembered devices.
type DeviceList struct {
	Devices         []Device
	PaginationToken string
}

// Client is the identity-provider protocol client. All methods are blocking
// network calls and honour ctx cancellation. Failures carry a Code
// retrievable with CodeOf.
type Client interface {
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)
	RespondToChallenge(ctx context.Context, resp ChallengeResponse) (*AuthResult, error)
	RefreshSession(ctx context.Context, username, refreshToken string) (*Tokens, error)
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error)
	ConfirmRegistration(ctx context.Context, username, code string) error
	GetUserAttributes(ctx context.Context, accessToken string) ([]attributes.Attribute, error)
	ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error
	SetMFAPreference(ctx context.Context, accessToken string, pref MFAPreference) error
	ListDevices(ctx context.Context, accessToken string, limit int, paginationToken string) (*DeviceList, error)
	ConfirmDevice(ctx context.Context, accessToken, deviceKey, deviceName, passwordVerifier, salt string) error
	ForgetDevice(ctx context.Context, accessToken, deviceKey string) error
	SignOut(ctx context.Context, accessToken string) error
}
