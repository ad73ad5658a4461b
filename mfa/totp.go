// Package mfa helps enrol a software token when the provider issues an
// MFA-setup challenge: the shared secret from the challenge parameters is
// turned into a provisioning key the user's authenticator app can consume,
// and codes can be validated locally before being submitted.
package mfa

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// SetupKey builds an otpauth provisioning key from the shared secret the
// provider returned with its MFA-setup challenge.
func SetupKey(secret, issuer, account string) (*otp.Key, error) {
	if secret == "" {
		return nil, errors.New("[mfa.SetupKey] secret is required")
	}
	if issuer == "" || account == "" {
		return nil, errors.New("[mfa.SetupKey] issuer and account are required")
	}

	raw := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(account), url.QueryEscape(secret), url.QueryEscape(issuer))
	key, err := otp.NewKeyFromURL(raw)
	if err != nil {
		return nil, errors.Wrap(err, "[mfa.SetupKey] build provisioning key")
	}
	return key, nil
}

// ValidateCode checks a TOTP code against the shared secret, letting the
// application reject a mistyped code before a provider round trip.
func ValidateCode(code, secret string) bool {
	return totp.Validate(code, secret)
}

// GenerateCode produces the TOTP code for the secret at time t.
func GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", errors.Wrap(err, "[mfa.GenerateCode] generate code")
	}
	return code, nil
}
