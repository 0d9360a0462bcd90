package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/storage"
	"github.com/s155cp/memberctl/pkg/cache"
	"github.com/s155cp/memberctl/pkg/config"
	"github.com/s155cp/memberctl/pkg/logger"
	"github.com/s155cp/memberctl/pkg/progress"
	"github.com/s155cp/memberctl/pkg/secrets"
	"github.com/s155cp/memberctl/pkg/state"
	"github.com/spf13/cobra"
)

// app holds what every command needs: resolved config, logger, API client
// and session store.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	client *auth.Client
	store  storage.SessionStore
	// responses caches API responses. Nil when caching is disabled.
	responses *cache.Cache
	// history journals session events. Nil when disabled.
	history   *state.History
	out       io.Writer
	errOut    io.Writer

	// ended is closed the first time the session manager redirects to
	// login, i.e. when the session is over.
	ended   chan struct{}
	endOnce sync.Once
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	loader := config.NewLoader(cliName)
	if opts.configPath != "" {
		loader.SetConfigFile(opts.configPath)
	}
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", loader.ConfigPath(), err)
	}

	logCfg := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: secrets.NewMaskingWriter(nil, cmd.ErrOrStderr()),
	}
	switch {
	case opts.debug:
		logCfg.Level = "debug"
	case opts.verbose:
		logCfg.Level = "info"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := auth.NewClient(cfg.APIURL,
		auth.WithUserAgent(fmt.Sprintf("%s/%s", cliName, version)),
		auth.WithClientLogger(log),
	)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFactory().Create(&cfg.Storage, cliName)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	var responses *cache.Cache
	if cfg.Cache.TTL > 0 {
		if cfg.Cache.Dir != "" {
			responses, err = cache.NewAt(cfg.Cache.Dir)
		} else {
			responses, err = cache.New(cliName)
		}
		if err != nil {
			log.Warn("response cache disabled", logger.Error(err))
			responses = nil
		}
	}

	var history *state.History
	if cfg.History.Enabled {
		if cfg.History.Path != "" {
			history, err = state.NewHistoryAt(cfg.History.Path, cfg.History.MaxEntries)
		} else {
			history, err = state.NewHistory(cliName, cfg.History.MaxEntries)
		}
		if err != nil {
			log.Warn("session history disabled", logger.Error(err))
			history = nil
		}
	}

	log.Debug("configuration loaded",
		logger.String("config", loader.ConfigPath()),
		logger.String("api_url", cfg.APIURL),
		logger.String("storage", string(cfg.Storage.Type)),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		client:    client,
		store:     store,
		responses: responses,
		history:   history,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		ended:     make(chan struct{}),
	}, nil
}

// loading builds the indicator shown while a refresh is in flight.
func (a *app) loading(enabled bool) *progress.Loading {
	return progress.NewLoadingIndicator(&progress.Config{
		Type:    progress.Type(a.cfg.Progress.Type),
		Enabled: enabled,
		Message: "Refreshing session...",
		Writer:  a.errOut,
	})
}

// sessionManager wires a SessionManager to this app. nav defaults to a
// prompt suggesting `memberctl login`. extra options are applied last.
func (a *app) sessionManager(nav auth.Navigator, loading auth.LoadingIndicator, extra ...auth.SessionOption) *auth.SessionManager {
	if nav == nil {
		nav = auth.NewPromptNavigator(cliName + " login").WithWriter(a.errOut)
	}
	if loading == nil {
		loading = a.loading(true)
	}

	ending := auth.NavigatorFunc(func(ctx context.Context, redirectTo string) error {
		defer a.endOnce.Do(func() { close(a.ended) })
		return nav.RedirectToLogin(ctx, redirectTo)
	})

	opts := []auth.SessionOption{
		auth.WithRefreshConfig(a.cfg.Refresh),
		auth.WithNavigator(ending),
		auth.WithLoadingIndicator(loading),
		auth.WithEventHandler(a.recordEvent),
		auth.WithLogger(a.log),
	}
	return auth.NewSessionManager(a.client, a.store, append(opts, extra...)...)
}

// recordEvent appends a session event to the history journal.
func (a *app) recordEvent(ev auth.Event) {
	if a.history == nil {
		return
	}

	entry := &state.HistoryEntry{
		Event:     string(ev.Kind),
		Timestamp: ev.Time,
		Attempt:   ev.Attempt,
	}
	if ev.User != nil {
		entry.Member = ev.User.Email
	}
	if ev.Err != nil {
		entry.Detail = ev.Err.Error()
	}

	if err := a.history.Record(context.Background(), entry); err != nil {
		a.log.Warn("failed to record session event", logger.String("event", entry.Event), logger.Error(err))
	}
}

// sessionEnded reports whether the manager has redirected to login.
func (a *app) sessionEnded() bool {
	select {
	case <-a.ended:
		return true
	default:
		return false
	}
}

// notSignedIn is returned by commands that need a stored session.
func notSignedIn() error {
	return fmt.Errorf("%w, run `%s login` first", auth.ErrNoSession, cliName)
}

func (a *app) close() {
	_ = a.log.Sync()
}
