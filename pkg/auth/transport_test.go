package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenGate rejects every token except the ones it has been told to accept.
type tokenGate struct {
	mu       sync.Mutex
	rejected string
	seen     []string
	bodies   []string
}

func (g *tokenGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	g.mu.Lock()
	auth := r.Header.Get("Authorization")
	g.seen = append(g.seen, auth)
	g.bodies = append(g.bodies, string(body))
	rejected := g.rejected
	g.mu.Unlock()

	if auth == "" || auth == rejected {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (g *tokenGate) headers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seen...)
}

func TestTransport_AttachesToken(t *testing.T) {
	h := newHarness(t)
	h.hold(sessionExpiringAt(testNow.Add(10 * time.Minute)))

	gate := &tokenGate{}
	srv := httptest.NewServer(gate)
	defer srv.Close()

	client := NewAuthenticatedClient(srv.Client(), h.m)
	resp, err := client.Get(srv.URL + "/v1/members/me")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{h.m.Authorization()}, gate.headers())
	assert.Zero(t, h.api.callCount())
}

func TestTransport_RefreshesOnUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.hold(sessionExpiringAt(testNow.Add(10 * time.Minute)))
	stale := h.m.Authorization()

	gate := &tokenGate{rejected: stale}
	srv := httptest.NewServer(gate)
	defer srv.Close()

	client := NewAuthenticatedClient(srv.Client(), h.m)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/v1/rides", strings.NewReader(`{"route":"coast"}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.api.callCount())

	seen := gate.headers()
	require.Len(t, seen, 2)
	assert.Equal(t, stale, seen[0])
	assert.NotEqual(t, stale, seen[1])
	assert.Equal(t, h.m.Authorization(), seen[1])
	assert.Equal(t, []string{`{"route":"coast"}`, `{"route":"coast"}`}, gate.bodies)

	// The reactive refresh is user-blocking.
	assert.Equal(t, []bool{true, false}, h.ui.loadingCalls())
}

func TestTransport_FailedRefreshReturnsOriginalResponse(t *testing.T) {
	h := newHarness(t)
	h.api.script(failWith(&APIError{StatusCode: http.StatusUnauthorized}))
	h.hold(sessionExpiringAt(testNow.Add(10 * time.Minute)))

	gate := &tokenGate{rejected: h.m.Authorization()}
	srv := httptest.NewServer(gate)
	defer srv.Close()

	transport := &Transport{Base: srv.Client().Transport, Session: h.m}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/members/me", nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "token expired")
	assert.Len(t, gate.headers(), 1)
	assert.Equal(t, 1, h.ui.redirectCount())
	assert.Empty(t, h.m.Authorization())
}

func TestTransport_PassesThroughExplicitAuthorization(t *testing.T) {
	h := newHarness(t)
	h.hold(sessionExpiringAt(testNow.Add(10 * time.Minute)))

	gate := &tokenGate{rejected: "Bearer explicit"}
	srv := httptest.NewServer(gate)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+PathRefresh, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer explicit")

	resp, err := (&Transport{Session: h.m}).RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"Bearer explicit"}, gate.headers())
	assert.Zero(t, h.api.callCount())
}

func TestTransport_NoSession(t *testing.T) {
	h := newHarness(t)

	gate := &tokenGate{}
	srv := httptest.NewServer(gate)
	defer srv.Close()

	resp, err := NewAuthenticatedClient(nil, h.m).Get(srv.URL + "/v1/auth/designations")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{""}, gate.headers())
	assert.Zero(t, h.api.callCount())
}
