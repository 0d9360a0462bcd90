// Package auth keeps a member's session alive against the club membership API.
//
// The centerpiece is SessionManager, which owns the access-token refresh
// cycle: it schedules a proactive refresh before the token expires, retries
// transient failures with a constant backoff, and ends the session (clearing
// the stored credentials and redirecting to the login screen) when refresh is
// no longer possible.
//
// # Collaborators
//
// The manager is wired from small interfaces so that each concern can be
// swapped or faked in tests:
//
//   - Refresher: the Auth API (Client implements it over HTTP)
//   - SessionStore: persisted {access, user} (see the storage package)
//   - Navigator: sends the user to the login screen
//   - LoadingIndicator: a process-wide busy flag (see the progress package)
//
// # Example
//
//	client, _ := auth.NewClient("https://api.example.org")
//	store, _ := storage.NewFactory().Create(&types.StorageConfig{Type: types.StorageTypeFile}, "memberctl")
//	mgr := auth.NewSessionManager(client, store,
//	    auth.WithNavigator(auth.NewPromptNavigator("memberctl login")),
//	    auth.WithLoadingIndicator(progress.NewSpinner(nil)),
//	)
//	defer mgr.Close()
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//
// Requests to other endpoints can go through Transport, which attaches the
// current token and performs a reactive refresh when the API answers 401.
package auth

import (
	"context"
	"time"

	"github.com/s155cp/memberctl/pkg/auth/storage"
	"github.com/s155cp/memberctl/pkg/auth/types"
)

// Refresher exchanges a still-valid access token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, access *types.AccessToken) (*types.Session, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, access *types.AccessToken) (*types.Session, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, access *types.AccessToken) (*types.Session, error) {
	return f(ctx, access)
}

// SessionStore is an alias for storage.SessionStore.
type SessionStore = storage.SessionStore

// Navigator sends the user to the login entry point.
type Navigator interface {
	// RedirectToLogin navigates away from the current view. redirectTo is
	// the optional path to return to after signing in.
	RedirectToLogin(ctx context.Context, redirectTo string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, redirectTo string) error

// RedirectToLogin calls f.
func (f NavigatorFunc) RedirectToLogin(ctx context.Context, redirectTo string) error {
	return f(ctx, redirectTo)
}

// LoadingIndicator is the process-wide busy flag shown while a user is
// blocked on a refresh.
type LoadingIndicator interface {
	SetLoading(loading bool)
}

// LoadingFunc adapts a function to the LoadingIndicator interface.
type LoadingFunc func(loading bool)

// SetLoading calls f.
func (f LoadingFunc) SetLoading(loading bool) {
	f(loading)
}

// EventKind names a session lifecycle transition.
type EventKind string

const (
	EventSignedIn     EventKind = "signed_in"
	EventRefreshed    EventKind = "refreshed"
	EventRefreshRetry EventKind = "refresh_retry"
	EventSignedOut    EventKind = "signed_out"
)

// Event describes one session lifecycle transition.
type Event struct {
	Kind EventKind
	Time time.Time
	// User is the member the session belonged to, when known.
	User *types.User
	// Attempt is the failed attempt count for EventRefreshRetry.
	Attempt int
	// Err is why a retry was scheduled or the session ended. It is nil
	// for an explicit logout.
	Err error
}

// EventHandler observes session lifecycle transitions. It runs
// synchronously on the goroutine that caused the transition and must not
// call back into the manager.
type EventHandler func(Event)
