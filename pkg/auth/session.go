package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/s155cp/memberctl/pkg/auth/storage"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/logger"
)

// Refresh defaults.
const (
	DefaultRefreshBuffer   = 5 * time.Minute
	DefaultMinRefreshDelay = 1 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 2 * time.Second
)

// RefreshConfig tunes the refresh cycle. Zero values take the defaults.
type RefreshConfig struct {
	// RefreshBuffer is how long before expiry to refresh proactively.
	RefreshBuffer time.Duration `yaml:"buffer" mapstructure:"buffer"`
	// MinRefreshDelay spaces out attempts and floors scheduled delays.
	MinRefreshDelay time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	// MaxRetries is the number of attempts before forcing logout.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	// RetryDelay is the constant backoff between retries.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	// RedirectTo is passed to the navigator so sign-in can return here.
	RedirectTo string `yaml:"redirect_to,omitempty" mapstructure:"redirect_to"`
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		RefreshBuffer:   DefaultRefreshBuffer,
		MinRefreshDelay: DefaultMinRefreshDelay,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = d.RefreshBuffer
	}
	if c.MinRefreshDelay <= 0 {
		c.MinRefreshDelay = d.MinRefreshDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	return c
}

// refreshState is process-local and never persisted.
type refreshState struct {
	inProgress    bool
	retryCount    int
	lastAttemptAt time.Time
	pending       *clock.Timer
	pendingSeq    uint64
}

// outcome is the internal result of a refresh attempt.
type outcome int

const (
	outcomeRefreshed outcome = iota
	outcomeBusy
	outcomeRateLimited
	outcomeNoSession
	outcomeRetryScheduled
	outcomeLoggedOut
	outcomeAborted
)

func (o outcome) String() string {
	switch o {
	case outcomeRefreshed:
		return "refreshed"
	case outcomeBusy:
		return "busy"
	case outcomeRateLimited:
		return "rate_limited"
	case outcomeNoSession:
		return "no_session"
	case outcomeRetryScheduled:
		return "retry_scheduled"
	case outcomeLoggedOut:
		return "logged_out"
	default:
		return "aborted"
	}
}

// SessionManager keeps an access token valid for as long as the session is
// legitimate. It is safe for concurrent use.
type SessionManager struct {
	api     Refresher
	store   SessionStore
	nav     Navigator
	loading LoadingIndicator
	onEvent EventHandler
	clock   clock.Clock
	log     logger.Logger
	cfg     RefreshConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	state      refreshState
	session    *types.Session
	timerSeq   uint64
	generation uint64
	closed     bool
	loggedOut  bool
	// loadingHolds counts indicator acquisitions not yet released.
	loadingHolds int
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithRefreshConfig overrides the refresh configuration.
func WithRefreshConfig(cfg RefreshConfig) SessionOption {
	return func(m *SessionManager) {
		m.cfg = cfg.withDefaults()
	}
}

// WithClock sets the clock used for timestamps and timers.
func WithClock(c clock.Clock) SessionOption {
	return func(m *SessionManager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithNavigator sets where the user is sent on logout.
func WithNavigator(nav Navigator) SessionOption {
	return func(m *SessionManager) {
		m.nav = nav
	}
}

// WithLoadingIndicator sets the busy indicator.
func WithLoadingIndicator(l LoadingIndicator) SessionOption {
	return func(m *SessionManager) {
		m.loading = l
	}
}

// WithEventHandler sets the lifecycle observer.
func WithEventHandler(h EventHandler) SessionOption {
	return func(m *SessionManager) {
		m.onEvent = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewSessionManager creates a manager over api and store.
func NewSessionManager(api Refresher, store SessionStore, opts ...SessionOption) *SessionManager {
	if store == nil {
		store = storage.NewMemoryStorage()
	}

	m := &SessionManager{
		api:   api,
		store: store,
		clock: clock.New(),
		log:   logger.Nop(),
		cfg:   DefaultRefreshConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("session"))
	m.baseCtx, m.cancel = context.WithCancel(context.Background())

	return m
}

// Config returns the effective refresh configuration.
func (m *SessionManager) Config() RefreshConfig {
	return m.cfg
}

// Start loads the persisted session and initializes the refresh cycle
// from it. A missing session is not an error.
func (m *SessionManager) Start(ctx context.Context) error {
	session, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.Initialize(ctx, nil)
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.session = session.Clone()
	m.mu.Unlock()

	m.Initialize(ctx, session.Access)
	return nil
}

// SetSession persists a freshly issued session (after an explicit login)
// and initializes the refresh cycle from it.
func (m *SessionManager) SetSession(ctx context.Context, session *types.Session) error {
	if session == nil || session.Access == nil || session.Access.Token == "" {
		return ErrNoSession
	}

	m.mu.Lock()
	if err := m.store.Save(ctx, session); err != nil {
		m.mu.Unlock()
		return err
	}
	m.session = session.Clone()
	m.state.retryCount = 0
	m.mu.Unlock()

	m.emit(Event{Kind: EventSignedIn, User: session.User})
	m.Initialize(ctx, session.Access)
	return nil
}

// Initialize re-evaluates the refresh cycle for access. Call it whenever
// the held token changes. nil clears any pending refresh; an expired or
// undecodable token forces logout.
func (m *SessionManager) Initialize(ctx context.Context, access *types.AccessToken) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if access == nil || access.Token == "" {
		m.stopTimerLocked()
		m.session = nil
		m.mu.Unlock()
		return
	}

	m.adoptLocked(access)
	m.loggedOut = false

	expiry, err := DecodeExpiry(access.Token)
	now := m.clock.Now()
	m.mu.Unlock()

	if err != nil || !expiry.After(now) {
		reason := errors.Join(err, ErrTokenExpired)
		m.log.Info("held token is expired, ending session", logger.Error(reason))
		m.logout(ctx, reason)
		return
	}

	m.ScheduleRefresh(ctx, access)
}

// ScheduleRefresh arms the proactive refresh for access, replacing any
// pending one. A token already inside the refresh buffer is refreshed
// immediately instead.
func (m *SessionManager) ScheduleRefresh(ctx context.Context, access *types.AccessToken) {
	m.schedule(ctx, access, false)
}

// schedule is ScheduleRefresh. A grant that was just issued and is already
// inside the buffer is refreshed again at half its remaining lifetime, not
// immediately.
func (m *SessionManager) schedule(ctx context.Context, access *types.AccessToken, fresh bool) {
	if access == nil {
		return
	}
	expiry, decodeErr := DecodeExpiry(access.Token)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()

	if decodeErr != nil {
		m.mu.Unlock()
		m.log.Warn("cannot schedule refresh for undecodable token", logger.Error(decodeErr))
		m.logout(ctx, decodeErr)
		return
	}

	now := m.clock.Now()
	untilExpiry := expiry.Sub(now)

	if untilExpiry > m.cfg.RefreshBuffer {
		delay := max(expiry.Add(-m.cfg.RefreshBuffer).Sub(now), m.cfg.MinRefreshDelay)
		m.armLocked(delay, m.proactiveRefresh)
		m.mu.Unlock()
		m.log.Debug("refresh scheduled",
			logger.Duration("delay", delay),
			logger.Time("expires_at", expiry),
		)
		return
	}
	if fresh {
		delay := max(untilExpiry/2, m.cfg.MinRefreshDelay)
		m.armLocked(delay, m.proactiveRefresh)
		m.mu.Unlock()
		m.log.Debug("short-lived grant, refresh scheduled",
			logger.Duration("delay", delay),
			logger.Duration("until_expiry", untilExpiry),
		)
		return
	}
	m.mu.Unlock()

	m.log.Debug("token inside refresh buffer, refreshing now", logger.Duration("until_expiry", untilExpiry))
	if m.refresh(ctx, false, false) == outcomeRateLimited {
		// Try again once the rate-limit window has passed.
		m.mu.Lock()
		if !m.closed && m.state.pending == nil {
			wait := m.cfg.MinRefreshDelay - m.clock.Now().Sub(m.state.lastAttemptAt)
			m.armLocked(max(wait, time.Millisecond), m.proactiveRefresh)
		}
		m.mu.Unlock()
	}
}

// RefreshToken attempts one refresh and reports whether a new token was
// stored. Unless force is set, it is a no-op while another attempt is in
// progress or within MinRefreshDelay of the previous attempt. The loading
// indicator is shown when showLoading is set or the held token has already
// expired.
func (m *SessionManager) RefreshToken(ctx context.Context, force, showLoading bool) bool {
	return m.refresh(ctx, force, showLoading) == outcomeRefreshed
}

// ManualRefresh is the reactive entry point, e.g. after an unrelated call
// returned 401. It bypasses the in-progress and rate-limit guards.
func (m *SessionManager) ManualRefresh(ctx context.Context, showLoading bool) bool {
	if !m.hasToken() {
		return false
	}
	return m.refresh(ctx, true, showLoading) == outcomeRefreshed
}

// Logout ends the session: it cancels any pending refresh, resets the
// refresh state, hides the loading indicator, clears the store and
// redirects to login. Repeated calls do not redirect again.
func (m *SessionManager) Logout(ctx context.Context) {
	m.logout(ctx, nil)
}

// logout is Logout recording why the session ended.
func (m *SessionManager) logout(ctx context.Context, reason error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.state = refreshState{}
	m.generation++
	holds := m.loadingHolds
	m.loadingHolds = 0
	var user *types.User
	if m.session != nil {
		user = m.session.User
	}
	m.session = nil
	already := m.loggedOut
	m.loggedOut = true
	if err := m.store.Delete(ctx); err != nil {
		m.log.Warn("failed to clear stored session", logger.Error(err))
	}
	m.mu.Unlock()

	m.releaseLoading(holds)

	if already {
		return
	}
	m.log.Info("session ended")
	m.emit(Event{Kind: EventSignedOut, User: user, Err: reason})
	if m.nav != nil {
		if err := m.nav.RedirectToLogin(ctx, m.cfg.RedirectTo); err != nil {
			m.log.Warn("redirect to login failed", logger.Error(err))
		}
	}
}

// NeedsRefresh reports whether a token is held and expires within the
// refresh buffer.
func (m *SessionManager) NeedsRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Access == nil {
		return false
	}
	return m.timeUntilExpiryLocked() <= m.cfg.RefreshBuffer
}

// TimeUntilExpiry returns how long the held token remains valid, or 0.
func (m *SessionManager) TimeUntilExpiry() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeUntilExpiryLocked()
}

// Session returns a copy of the held session, or nil.
func (m *SessionManager) Session() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Token returns a copy of the held access token, or nil.
func (m *SessionManager) Token() *types.AccessToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.Access == nil {
		return nil
	}
	a := *m.session.Access
	return &a
}

// Authorization returns the Authorization header for the held token, or "".
func (m *SessionManager) Authorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.Access.Authorization()
}

// Close stops the manager. Pending timers are cancelled and refreshes that
// complete afterwards are discarded.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimerLocked()
	m.generation++
	holds := m.loadingHolds
	m.loadingHolds = 0
	m.mu.Unlock()

	if holds > 0 {
		m.releaseLoading(holds)
	}

	m.cancel()
	return nil
}

// refresh is the core state transition behind RefreshToken.
func (m *SessionManager) refresh(ctx context.Context, force, showLoading bool) outcome {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return outcomeAborted
	}
	if m.session == nil || m.session.Access == nil || m.session.Access.Token == "" {
		m.mu.Unlock()
		return outcomeNoSession
	}

	now := m.clock.Now()
	if !force {
		if m.state.inProgress {
			m.mu.Unlock()
			return outcomeBusy
		}
		if !m.state.lastAttemptAt.IsZero() && now.Sub(m.state.lastAttemptAt) < m.cfg.MinRefreshDelay {
			m.mu.Unlock()
			return outcomeRateLimited
		}
	}

	m.state.inProgress = true
	m.state.lastAttemptAt = now
	access := *m.session.Access
	gen := m.generation
	show := showLoading || IsExpired(access.Token, now)
	m.mu.Unlock()

	if show {
		m.acquireLoading()
		defer m.releaseAttemptLoading(gen)
	}

	session, err := m.api.Refresh(ctx, &access)
	if err == nil {
		err = m.validateGrant(session)
	}

	m.mu.Lock()
	if m.closed || gen != m.generation {
		// Logged out or closed while the call was in flight.
		m.mu.Unlock()
		return outcomeAborted
	}

	if err == nil {
		if saveErr := m.store.Save(ctx, session); saveErr != nil {
			m.log.Warn("failed to persist refreshed session", logger.Error(saveErr))
		}
		if session.User == nil && m.session != nil && sameSubject(m.session.Access, session.Access) {
			session.User = m.session.User
		}
		m.session = session.Clone()
		m.state.retryCount = 0
		m.state.inProgress = false
		m.mu.Unlock()

		m.log.Debug("token refreshed", logger.Bool("forced", force))
		m.emit(Event{Kind: EventRefreshed, User: session.User})
		m.schedule(m.baseCtx, session.Access, true)
		return outcomeRefreshed
	}

	if ctx.Err() != nil && m.baseCtx.Err() == nil {
		// The caller gave up; that is not a refresh failure.
		m.state.inProgress = false
		m.mu.Unlock()
		return outcomeAborted
	}

	m.state.retryCount++
	attempt := m.state.retryCount

	if attempt >= m.cfg.MaxRetries || IsTerminal(err) {
		m.state.inProgress = false
		m.mu.Unlock()

		m.log.Warn("token refresh failed, ending session",
			logger.Attempt(attempt),
			logger.Bool("terminal", IsTerminal(err)),
			logger.Error(err),
		)
		m.logout(context.WithoutCancel(ctx), err)
		return outcomeLoggedOut
	}

	m.armLocked(m.cfg.RetryDelay, m.retryRefresh)
	m.state.inProgress = false
	var user *types.User
	if m.session != nil {
		user = m.session.User
	}
	m.mu.Unlock()

	m.emit(Event{Kind: EventRefreshRetry, User: user, Attempt: attempt, Err: err})
	m.log.Debug("token refresh failed, retrying",
		logger.Attempt(attempt),
		logger.Duration("retry_in", m.cfg.RetryDelay),
		logger.Error(err),
	)
	return outcomeRetryScheduled
}

// validateGrant rejects a refresh response whose token is missing or
// already expired.
func (m *SessionManager) validateGrant(session *types.Session) error {
	if session == nil || session.Access == nil || session.Access.Token == "" {
		return ErrInvalidGrant
	}
	if IsExpired(session.Access.Token, m.clock.Now()) {
		return errors.Join(ErrInvalidGrant, ErrTokenExpired)
	}
	return nil
}

func (m *SessionManager) proactiveRefresh() {
	m.refresh(m.baseCtx, false, false)
}

func (m *SessionManager) retryRefresh() {
	m.refresh(m.baseCtx, true, false)
}

// armLocked replaces the pending timer with one running fn after delay.
// The caller holds m.mu.
func (m *SessionManager) armLocked(delay time.Duration, fn func()) {
	m.stopTimerLocked()
	m.timerSeq++
	seq := m.timerSeq
	m.state.pendingSeq = seq
	m.state.pending = m.clock.AfterFunc(delay, func() { m.fire(seq, fn) })
}

// fire runs fn if the timer identified by seq is still the pending one.
func (m *SessionManager) fire(seq uint64, fn func()) {
	m.mu.Lock()
	if m.closed || m.state.pendingSeq != seq {
		m.mu.Unlock()
		return
	}
	m.state.pending = nil
	m.state.pendingSeq = 0
	held := m.session != nil && m.session.Access != nil
	m.mu.Unlock()

	if held {
		fn()
	}
}

func (m *SessionManager) stopTimerLocked() {
	if m.state.pending != nil {
		m.state.pending.Stop()
	}
	m.state.pending = nil
	m.state.pendingSeq = 0
}

// adoptLocked makes access the held token. The known user is kept only
// while the token subject stays the same.
func (m *SessionManager) adoptLocked(access *types.AccessToken) {
	a := *access
	if m.session == nil {
		m.session = &types.Session{}
	}
	if !sameSubject(m.session.Access, &a) {
		m.session.User = nil
	}
	m.session.Access = &a
}

// sameSubject reports whether both tokens name the same member. A missing
// previous token counts as the same.
func sameSubject(prev, next *types.AccessToken) bool {
	if prev == nil || prev.Token == "" {
		return true
	}
	return tokenSubject(prev.Token) == tokenSubject(next.Token)
}

func tokenSubject(token string) string {
	claims, err := ParseJWT(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}

func (m *SessionManager) timeUntilExpiryLocked() time.Duration {
	if m.session == nil || m.session.Access == nil {
		return 0
	}
	exp, err := DecodeExpiry(m.session.Access.Token)
	if err != nil {
		return 0
	}
	return max(exp.Sub(m.clock.Now()), 0)
}

func (m *SessionManager) hasToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.session != nil && m.session.Access != nil && m.session.Access.Token != ""
}

func (m *SessionManager) emit(ev Event) {
	if m.onEvent == nil {
		return
	}
	ev.Time = m.clock.Now()
	m.onEvent(ev)
}

func (m *SessionManager) acquireLoading() {
	m.mu.Lock()
	m.loadingHolds++
	m.mu.Unlock()
	m.setLoading(true)
}

// releaseAttemptLoading releases an attempt's hold unless a logout or
// close from a later generation already released it.
func (m *SessionManager) releaseAttemptLoading(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.loadingHolds == 0 {
		m.mu.Unlock()
		return
	}
	m.loadingHolds--
	m.mu.Unlock()
	m.setLoading(false)
}

// releaseLoading hides the indicator, releasing n holds. It always hides
// at least once.
func (m *SessionManager) releaseLoading(n int) {
	for i := 0; i < max(n, 1); i++ {
		m.setLoading(false)
	}
}

func (m *SessionManager) setLoading(loading bool) {
	if m.loading != nil {
		m.loading.SetLoading(loading)
	}
}
