package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/veridianlabs/go-auth-client/attributes"
	"github.com/veridianlabs/go-auth-client/device"
	"github.com/veridianlabs/go-auth-client/provider"
)

// accessToken returns a valid access token for the current user, refreshing
// the session when needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	sess, err := c.Session(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken(), nil
}

// ChangePassword changes the current user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return EmptyPasswordErr
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := c.provider.ChangePassword(ctx, token, oldPassword, newPassword); err != nil {
		return errors.Wrap(err, "[Client.ChangePassword] provider change password")
	}
	return nil
}

// SetPreferredMFA selects which second factor the provider demands at the
// current user's next sign-in.
func (c *Client) SetPreferredMFA(ctx context.Context, pref provider.MFAPreference) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := c.provider.SetMFAPreference(ctx, token, pref); err != nil {
		return errors.Wrap(err, "[Client.SetPreferredMFA] set MFA preference")
	}
	return nil
}

// UserAttributes fetches the current user's attributes partitioned into
// verified and unverified sets.
func (c *Client) UserAttributes(ctx context.Context) (verified, unverified map[string]string, err error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	attrs, err := c.provider.GetUserAttributes(ctx, token)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Client.UserAttributes] get user attributes")
	}
	verified, unverified = attributes.Partition(attrs)
	return verified, unverified, nil
}

// Devices lists one page of the current user's remembered devices.
func (c *Client) Devices(ctx context.Context, limit int, paginationToken string) (*provider.DeviceList, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	list, err := c.provider.ListDevices(ctx, token, limit, paginationToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Devices] list devices")
	}
	return list, nil
}

// RememberDevice registers this device against the current user so future
// sign-ins from it can skip MFA. The derived device password is returned for
// the host to store securely; the provider only receives the verifier.
func (c *Client) RememberDevice(ctx context.Context, deviceGroupKey, deviceName string) (*device.Secret, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	deviceKey := uuid.New().String()
	secret, err := device.NewSecret(deviceGroupKey, deviceKey)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.RememberDevice] derive device secret")
	}

	if err := c.provider.ConfirmDevice(ctx, token, deviceKey, deviceName, secret.Verifier, secret.Salt); err != nil {
		return nil, errors.Wrap(err, "[Client.RememberDevice] confirm device")
	}
	secret.DeviceKey = deviceKey
	return secret, nil
}

// ForgetDevice removes a remembered device.
func (c *Client) ForgetDevice(ctx context.Context, deviceKey string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := c.provider.ForgetDevice(ctx, token, deviceKey); err != nil {
		return errors.Wrap(err, "[Client.ForgetDevice] forget device")
	}
	return nil
}
