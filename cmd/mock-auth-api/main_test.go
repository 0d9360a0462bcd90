package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/s155cp/memberctl/internal/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the server goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServe(t *testing.T, opts serveOptions) (string, *syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, opts, out) }()

	t.Cleanup(cancel)
	return "http://" + ln.Addr().String(), out, cancel, done
}

func TestServe(t *testing.T) {
	base, out, cancel, done := startServe(t, serveOptions{
		ttl:            time.Minute,
		googleClientID: "dev.apps.googleusercontent.com",
		logLevel:       "warn",
	})

	var cfg struct {
		Google struct {
			ClientID string `json:"clientId"`
		} `json:"google"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/auth/config")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&cfg) == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "dev.apps.googleusercontent.com", cfg.Google.ClientID)

	body := fmt.Sprintf(`{"email":%q,"password":%q}`, authtest.DefaultEmail, authtest.DefaultPassword)
	resp, err := http.Post(base+"/v1/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, out.String(), "Fake Auth API listening on "+base)
	assert.Contains(t, out.String(), "MEMBERCTL_GOOGLE_AUTH_URL="+base+"/google/auth")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_ScriptedRefreshFailures(t *testing.T) {
	base, _, _, _ := startServe(t, serveOptions{failRefresh: []int{http.StatusServiceUnavailable}, logLevel: "warn"})

	req, err := http.NewRequest(http.MethodGet, base+"/v1/auth/refresh", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer whatever")

	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServe_InvalidLogLevel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = serve(context.Background(), ln, serveOptions{logLevel: "chatty"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"addr", "ttl", "google-client-id", "fail-refresh", "log-level", "log-format"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	require.NoError(t, err)
	assert.Equal(t, authtest.DefaultTTL, ttl)
}
