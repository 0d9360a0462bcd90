package progress

import "sync"

// Loading adapts a Progress to a process-wide busy flag. Calls nest: the
// indicator is shown by the first SetLoading(true) and hidden once every
// caller has released it. Unbalanced releases are ignored.
type Loading struct {
	progress Progress
	message  string

	mu    sync.Mutex
	depth int
}

// NewLoading wraps p. message is shown while loading.
func NewLoading(p Progress, message string) *Loading {
	if p == nil {
		p = NewNoopProgress()
	}
	return &Loading{progress: p, message: message}
}

// NewLoadingIndicator builds the indicator described by config.
func NewLoadingIndicator(config *Config) *Loading {
	if config == nil {
		config = DefaultConfig()
	}
	return NewLoading(New(config), config.Message)
}

// SetLoading shows or releases the indicator.
func (l *Loading) SetLoading(loading bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if loading {
		l.depth++
		if l.depth == 1 {
			_ = l.progress.Start(l.message)
		}
		return
	}

	if l.depth == 0 {
		return
	}
	l.depth--
	if l.depth == 0 {
		_ = l.progress.Stop()
	}
}

// Active reports whether the indicator is held.
func (l *Loading) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0
}
