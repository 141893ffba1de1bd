package msauth

import "errors"

var (
	// ErrNotConfigured means no Dynamics client configuration has been saved.
	ErrNotConfigured = errors.New("dynamics connection is not configured")
	// ErrNotAuthenticated means no account is signed in.
	ErrNotAuthenticated = errors.New("not authenticated with dynamics")
	// ErrTokenExpired means the session existed but could not be renewed.
	ErrTokenExpired = errors.New("dynamics session expired")
	// ErrAuthenticationCancelled means the user abandoned the sign-in flow.
	ErrAuthenticationCancelled = errors.New("authentication cancelled")
	// ErrAuthInProgress rejects a second interactive sign-in while one is pending.
	ErrAuthInProgress = errors.New("authentication already in progress")
)
