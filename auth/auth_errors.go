package auth

import "errors"

var (
	EmptyUsernameErr          = errors.New("username cannot be empty")
	EmptyPasswordErr          = errors.New("password cannot be empty")
	EmptyCodeErr              = errors.New("confirmation code cannot be empty")
	EmptyChallengeResponseErr = errors.New("challenge response cannot be empty")
	SignInPendingErr          = errors.New("a sign-in attempt is already pending")
	NoCurrentUserErr          = errors.New("no current user")
	NoPendingChallengeErr     = errors.New("no pending challenge for this user")
	ChallengeMismatchErr      = errors.New("response does not match the pending challenge")
	HostedUINotConfiguredErr  = errors.New("hosted UI is not configured")
)
