package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/s155cp/memberctl/pkg/auth/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultGoogleScopes are requested when none are configured.
var DefaultGoogleScopes = []string{"openid", "email", "profile"}

// DefaultGoogleTimeout bounds how long to wait for the browser callback.
const DefaultGoogleTimeout = 5 * time.Minute

// GoogleOptions configures Google sign-in.
type GoogleOptions struct {
	// ClientID is the Google OAuth client. Empty fetches it from the API.
	ClientID string
	// RedirectURL is the loopback callback. When empty a listener is
	// started on 127.0.0.1:CallbackPort (0 picks a free port).
	RedirectURL  string
	CallbackPort int
	Scopes       []string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
	// Opener opens the consent page. Nil only prints the URL.
	Opener BrowserOpener
	Out    io.Writer
	// Timeout defaults to DefaultGoogleTimeout.
	Timeout time.Duration
	// HTTPClient is used for the code exchange.
	HTTPClient *http.Client
}

// GoogleLogin signs a member in with Google using the authorization code
// flow with PKCE, then trades the Google access token for a session.
type GoogleLogin struct {
	api  *Client
	opts GoogleOptions
}

// NewGoogleLogin creates a Google sign-in flow against api.
func NewGoogleLogin(api *Client, opts GoogleOptions) (*GoogleLogin, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if opts.Endpoint.AuthURL == "" {
		opts.Endpoint = endpoints.Google
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultGoogleScopes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultGoogleTimeout
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &GoogleLogin{api: api, opts: opts}, nil
}

type callbackResult struct {
	code string
	err  error
}

// Login runs the browser flow and returns the new session.
func (g *GoogleLogin) Login(ctx context.Context) (*types.Session, error) {
	clientID := g.opts.ClientID
	if clientID == "" {
		remote, err := g.api.Config(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sign-in config: %w", err)
		}
		clientID = remote.Google.ClientID
	}
	if clientID == "" {
		return nil, fmt.Errorf("google client_id is not configured")
	}

	state := generateRandomString(32)
	listener, redirectURL, err := g.listen()
	if err != nil {
		return nil, err
	}

	results := make(chan callbackResult, 1)
	server := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	config := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      g.opts.Scopes,
		Endpoint:    g.opts.Endpoint,
	}

	verifier := oauth2.GenerateVerifier()
	authURL := config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	_, _ = fmt.Fprintf(g.opts.Out, "\nOpening browser to:\n%s\n\n", authURL)
	if g.opts.Opener != nil {
		if err := g.opts.Opener.Open(authURL); err != nil {
			_, _ = fmt.Fprintf(g.opts.Out, "Failed to open browser automatically.\n")
			_, _ = fmt.Fprintf(g.opts.Out, "Please visit the URL above manually.\n")
		}
	}
	_, _ = fmt.Fprintln(g.opts.Out, "Waiting for authorization...")

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization cancelled: %w", ctx.Err())
	case <-time.After(g.opts.Timeout):
		return nil, fmt.Errorf("authorization timeout")
	}

	exchangeCtx := ctx
	if g.opts.HTTPClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, g.opts.HTTPClient)
	}
	token, err := config.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return g.api.LoginWithGoogle(ctx, token.AccessToken)
}

// listen opens the callback listener and returns the redirect URL for it.
func (g *GoogleLogin) listen() (net.Listener, string, error) {
	if g.opts.RedirectURL != "" {
		u, err := url.Parse(g.opts.RedirectURL)
		if err != nil {
			return nil, "", fmt.Errorf("invalid redirect URL: %w", err)
		}
		l, err := net.Listen("tcp", u.Host)
		if err != nil {
			return nil, "", fmt.Errorf("failed to start callback server: %w", err)
		}
		return l, g.opts.RedirectURL, nil
	}

	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", g.opts.CallbackPort))
	if err != nil {
		return nil, "", fmt.Errorf("failed to start callback server: %w", err)
	}
	return l, fmt.Sprintf("http://%s/callback", l.Addr().String()), nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	deliver := func(res callbackResult) {
		select {
		case results <- res:
		default:
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("authorization failed: state mismatch")})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("authorization failed: no code")})
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, "<html><body><h1>Signed in!</h1><p>You can close this window and return to the terminal.</p></body></html>")
		deliver(callbackResult{code: code})
	})
}

// generateRandomString generates a random string of the specified length.
func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes)[:length]
}
