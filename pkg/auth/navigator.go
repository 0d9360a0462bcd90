package auth

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/pterm/pterm"
	"github.com/skratchdot/open-golang/open"
)

// DefaultLoginPath is the web sign-in route.
const DefaultLoginPath = "/login"

// BrowserOpener defines the interface for opening URLs in a browser.
type BrowserOpener interface {
	Open(url string) error
}

// SystemBrowserOpener opens URLs using the system default browser.
type SystemBrowserOpener struct{}

// Open opens a URL in the system default browser.
func (s *SystemBrowserOpener) Open(url string) error {
	return open.Run(url)
}

// MockBrowserOpener is a mock implementation for testing.
type MockBrowserOpener struct {
	mu         sync.Mutex
	OpenedURLs []string
	Err        error
}

// Open records the URL and returns the configured error.
func (m *MockBrowserOpener) Open(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenedURLs = append(m.OpenedURLs, url)
	return m.Err
}

// GetOpenedURLs returns a copy of the opened URLs in a thread-safe manner.
func (m *MockBrowserOpener) GetOpenedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, len(m.OpenedURLs))
	copy(urls, m.OpenedURLs)
	return urls
}

// BrowserNavigator sends the user to the web sign-in page.
type BrowserNavigator struct {
	WebURL    string
	LoginPath string
	Opener    BrowserOpener
	// Out receives the URL so it can be opened by hand if the browser
	// cannot be started. Nil discards it.
	Out io.Writer
}

// NewBrowserNavigator creates a navigator for the web app at webURL.
func NewBrowserNavigator(webURL string) *BrowserNavigator {
	return &BrowserNavigator{
		WebURL:    webURL,
		LoginPath: DefaultLoginPath,
		Opener:    &SystemBrowserOpener{},
		Out:       os.Stderr,
	}
}

// LoginURL returns the sign-in URL, carrying redirectTo when set.
func (b *BrowserNavigator) LoginURL(redirectTo string) (string, error) {
	u, err := url.Parse(strings.TrimRight(b.WebURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid web URL: %w", err)
	}

	path := b.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	u.Path += "/" + strings.TrimLeft(path, "/")

	if redirectTo != "" {
		q := u.Query()
		q.Set("redirect", redirectTo)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// RedirectToLogin opens the sign-in page.
func (b *BrowserNavigator) RedirectToLogin(_ context.Context, redirectTo string) error {
	loginURL, err := b.LoginURL(redirectTo)
	if err != nil {
		return err
	}

	out := b.Out
	if out == nil {
		out = io.Discard
	}
	_, _ = fmt.Fprintf(out, "\nOpening browser to:\n%s\n\n", loginURL)

	opener := b.Opener
	if opener == nil {
		opener = &SystemBrowserOpener{}
	}
	if err := opener.Open(loginURL); err != nil {
		_, _ = fmt.Fprintf(out, "Failed to open browser automatically.\n")
		_, _ = fmt.Fprintf(out, "Please visit the URL above manually.\n")
		return err
	}

	return nil
}

// PromptNavigator tells a terminal user how to sign in again.
type PromptNavigator struct {
	// Command is the command to suggest, e.g. "memberctl login".
	Command string
	printer *pterm.PrefixPrinter
}

// NewPromptNavigator creates a navigator that suggests command.
func NewPromptNavigator(command string) *PromptNavigator {
	p := pterm.Warning.WithWriter(os.Stderr)
	return &PromptNavigator{Command: command, printer: p}
}

// WithWriter returns a copy that prints to w.
func (p *PromptNavigator) WithWriter(w io.Writer) *PromptNavigator {
	c := *p
	c.printer = pterm.Warning.WithWriter(w)
	return &c
}

// RedirectToLogin prints the sign-in hint.
func (p *PromptNavigator) RedirectToLogin(_ context.Context, redirectTo string) error {
	printer := p.printer
	if printer == nil {
		printer = pterm.Warning.WithWriter(os.Stderr)
	}

	msg := fmt.Sprintf("Your session has ended. Run `%s` to sign in again.", p.Command)
	if redirectTo != "" {
		msg += fmt.Sprintf(" (was: %s)", redirectTo)
	}
	printer.Println(msg)

	return nil
}
