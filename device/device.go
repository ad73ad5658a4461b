// Package device derives the secret material registered with the identity
// provider when a device is remembered after an MFA sign-in. The provider
// stores only the salted verifier; the random device password stays with the
// host.
package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	passwordBytes = 40
	saltBytes     = 16
	verifierBytes = 32
)

// Secret is the material produced when confirming a device.
type Secret struct {
	// DeviceKey is assigned by the caller after the provider accepts the
	// confirmation.
	DeviceKey string
	// Password is the random device password. It is shown once and never
	// persisted by this library.
	Password string
	Salt     string
	Verifier string
}

// NewSecret generates a random device password and derives the salted
// verifier bound to the device group and key.
func NewSecret(deviceGroupKey, deviceKey string) (*Secret, error) {
	if deviceGroupKey == "" || deviceKey == "" {
		return nil, errors.New("[device.NewSecret] device group key and device key are required")
	}

	password := make([]byte, passwordBytes)
	if _, err := rand.Read(password); err != nil {
		return nil, errors.Wrap(err, "[device.NewSecret] generate password")
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "[device.NewSecret] generate salt")
	}

	verifier, err := deriveVerifier(password, salt, deviceGroupKey, deviceKey)
	if err != nil {
		return nil, err
	}

	return &Secret{
		Password: base64.StdEncoding.EncodeToString(password),
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Verifier: verifier,
	}, nil
}

// Verify re-derives the verifier from a stored password and salt and reports
// whether it matches. Used when proving device possession at sign-in.
func Verify(password, salt, deviceGroupKey, deviceKey, verifier string) (bool, error) {
	rawPassword, err := base64.StdEncoding.DecodeString(password)
	if err != nil {
		return false, errors.Wrap(err, "[device.Verify] decode password")
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, errors.Wrap(err, "[device.Verify] decode salt")
	}
	derived, err := deriveVerifier(rawPassword, rawSalt, deviceGroupKey, deviceKey)
	if err != nil {
		return false, err
	}
	return derived == verifier, nil
}

func deriveVerifier(password, salt []byte, deviceGroupKey, deviceKey string) (string, error) {
	kdf := hkdf.New(sha256.New, password, salt, []byte(deviceGroupKey+deviceKey))
	verifier := make([]byte, verifierBytes)
	if _, err := io.ReadFull(kdf, verifier); err != nil {
		return "", errors.Wrap(err, "[device.deriveVerifier] hkdf")
	}
	return base64.StdEncoding.EncodeToString(verifier), nil
}
