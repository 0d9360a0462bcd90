package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/s155cp/memberctl/internal/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type cliEnv struct {
	fake        *authtest.Server
	sessionPath string
	cacheDir    string
	historyPath string
}

func newCLIEnv(t *testing.T, opts ...authtest.Option) *cliEnv {
	t.Helper()
	fake := authtest.New(opts...)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliEnv{
		fake:        fake,
		sessionPath: filepath.Join(dir, "session.json"),
		cacheDir:    filepath.Join(dir, "cache"),
		historyPath: filepath.Join(dir, "state", "history.json"),
	}

	t.Setenv("MEMBERCTL_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("MEMBERCTL_API_URL", srv.URL)
	t.Setenv("MEMBERCTL_STORAGE_TYPE", "file")
	t.Setenv("MEMBERCTL_STORAGE_PATH", env.sessionPath)
	t.Setenv("MEMBERCTL_PROGRESS_TYPE", "none")
	t.Setenv("MEMBERCTL_CACHE_DIR", env.cacheDir)
	t.Setenv("MEMBERCTL_HISTORY_PATH", env.historyPath)
	return env
}

func run(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	out, _, err := run(t, context.Background(), "login", "--email", authtest.DefaultEmail, "--password", authtest.DefaultPassword)
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Casey Stoner <rider@example.com>")
}

func TestCLI_SessionLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	ctx := context.Background()

	env.login(t)
	require.FileExists(t, env.sessionPath)

	out, _, err := run(t, ctx, "status", "-o", "json")
	require.NoError(t, err)
	var status sessionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.SignedIn)
	assert.Equal(t, authtest.DefaultEmail, status.Email)
	assert.Equal(t, "Road Captain", status.Designation)
	assert.Equal(t, "Bearer", status.TokenType)
	assert.Equal(t, "eyJhbG***", status.Token)
	assert.False(t, status.NeedsRefresh)
	assert.InDelta(t, authtest.DefaultTTL.Seconds(), status.ExpiresIn.Seconds(), 30)
	assert.Equal(t, 0, env.fake.RefreshCount())

	out, _, err = run(t, ctx, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session refreshed")
	assert.Equal(t, 1, env.fake.RefreshCount())

	out, _, err = run(t, ctx, "designations", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Road Captain"`)

	out, _, err = run(t, ctx, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.NoFileExists(t, env.sessionPath)

	out, _, err = run(t, ctx, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestCLI_DesignationsCached(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	ctx := context.Background()

	out, _, err := run(t, ctx, "designations")
	require.NoError(t, err)
	assert.Contains(t, out, "DESIGNATION")
	assert.Contains(t, out, "Road Captain")

	entries, err := os.ReadDir(env.cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	out, _, err = run(t, ctx, "designations", "--no-cache", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Road Captain")

	t.Setenv("MEMBERCTL_CACHE_TTL", "0s")
	require.NoError(t, os.RemoveAll(env.cacheDir))
	_, _, err = run(t, ctx, "designations")
	require.NoError(t, err)
	assert.NoDirExists(t, env.cacheDir)
}

func TestCLI_SessionHistory(t *testing.T) {
	env := newCLIEnv(t)
	ctx := context.Background()

	out, _, err := run(t, ctx, "session", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No session events recorded")

	env.login(t)
	_, _, err = run(t, ctx, "refresh", "-q")
	require.NoError(t, err)
	env.fake.FailNext(http.StatusUnauthorized)
	_, _, err = run(t, ctx, "refresh")
	require.Error(t, err)

	out, _, err = run(t, ctx, "session", "history", "-o", "json")
	require.NoError(t, err)
	var entries []struct {
		ID     int    `json:"id"`
		Event  string `json:"event"`
		Member string `json:"member"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "signed_in", entries[0].Event)
	assert.Equal(t, "refreshed", entries[1].Event)
	assert.Equal(t, "signed_out", entries[2].Event)
	assert.Equal(t, authtest.DefaultEmail, entries[2].Member)
	assert.Contains(t, entries[2].Detail, "401")

	out, _, err = run(t, ctx, "session", "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "signed_out")
	assert.NotContains(t, out, "signed_in")

	_, _, err = run(t, ctx, "session", "history", "--clear")
	require.NoError(t, err)
	assert.NoFileExists(t, env.historyPath)
}

func TestCLI_LogoutRecordsMember(t *testing.T) {
	env := newCLIEnv(t)
	ctx := context.Background()
	env.login(t)

	_, _, err := run(t, ctx, "logout")
	require.NoError(t, err)

	out, _, err := run(t, ctx, "session", "history", "-o", "yaml")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "signed_out", entries[1]["event"])
	assert.Equal(t, authtest.DefaultEmail, entries[1]["member"])
	assert.NotContains(t, entries[1], "detail")
}

func TestCLI_StatusYAMLShowToken(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, _, err := run(t, context.Background(), "status", "-o", "yaml", "--show-token")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, true, doc["signed_in"])
	assert.Regexp(t, `^eyJ[^.]+\.[^.]+\.[^.]+$`, doc["token"])
}

func TestCLI_StatusRejectsUnknownFormat(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, _, err := run(t, context.Background(), "status", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestCLI_LoginRejected(t *testing.T) {
	newCLIEnv(t)

	_, _, err := run(t, context.Background(), "login", "--email", authtest.DefaultEmail, "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign-in rejected")
}

func TestCLI_LoginWithToken(t *testing.T) {
	env := newCLIEnv(t)
	session, ok := env.fake.Grant(authtest.DefaultEmail)
	require.True(t, ok)

	out, _, err := run(t, context.Background(), "login", "--token", session.Access.Token)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as")
	assert.FileExists(t, env.sessionPath)
}

func TestCLI_CommandsWithoutSession(t *testing.T) {
	newCLIEnv(t)

	for _, args := range [][]string{{"refresh"}, {"designations"}, {"session", "keepalive"}} {
		_, _, err := run(t, context.Background(), args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "memberctl login", args)
	}

	out, _, err := run(t, context.Background(), "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestCLI_RefreshRejectedEndsSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	env.fake.FailNext(http.StatusUnauthorized)

	_, errOut, err := run(t, context.Background(), "refresh", "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ended")
	assert.Contains(t, errOut, "Run `memberctl login` to sign in again")
	assert.NoFileExists(t, env.sessionPath)
}

func TestCLI_KeepaliveExitsOnForcedLogout(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	// A buffer longer than the token lifetime makes startup refresh at once.
	t.Setenv("MEMBERCTL_REFRESH_BUFFER", "1h")
	env.fake.FailNext(http.StatusForbidden)

	_, errOut, err := run(t, context.Background(), "session", "keepalive")
	require.ErrorIs(t, err, errSessionEnded)
	assert.Contains(t, errOut, "Your session has ended")
	assert.NoFileExists(t, env.sessionPath)
}

func TestCLI_KeepaliveStopsOnCancel(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, _, err := run(t, ctx, "session", "keepalive", "--report", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Keeping Casey Stoner <rider@example.com> signed in")
	assert.Contains(t, out, "Stopped")
	assert.FileExists(t, env.sessionPath)
}

func TestCLI_DebugLogsMaskTokens(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	t.Setenv("MEMBERCTL_LOG_FORMAT", "json")

	_, errOut, err := run(t, context.Background(), "status", "-o", "json", "--show-token", "-d")
	require.NoError(t, err)
	assert.Contains(t, errOut, "configuration loaded")
	assert.NotRegexp(t, `eyJ[A-Za-z0-9_-]+\.eyJ`, errOut)
}

func TestCLI_InvalidConfig(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("MEMBERCTL_LOG_FORMAT", "xml")

	_, _, err := run(t, context.Background(), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "log.format")
}

func TestCLI_APIURLFlag(t *testing.T) {
	newCLIEnv(t)

	_, _, err := run(t, context.Background(), "--api-url", "not a url", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_url")
}

func TestDescribeMember(t *testing.T) {
	assert.Equal(t, "unknown member", describeMember(nil))
}
