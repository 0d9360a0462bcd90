package progress

import (
	"fmt"
	"os"
	"sync"

	"github.com/pterm/pterm"
)

// Spinner implements a spinner progress indicator.
type Spinner struct {
	spinner *pterm.SpinnerPrinter
	config  *Config
	active  bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner progress indicator.
func NewSpinner(config *Config) *Spinner {
	if config == nil {
		config = DefaultConfig()
	}

	return &Spinner{
		config: config,
	}
}

// Start starts the spinner with a message.
func (s *Spinner) Start(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled {
		return nil
	}

	if s.active {
		return fmt.Errorf("spinner already active")
	}

	printer := pterm.DefaultSpinner.WithRemoveWhenDone(true)
	if s.config.Writer != nil && s.config.Writer != os.Stdout {
		printer = printer.WithWriter(s.config.Writer)
	}
	if s.config.RefreshRate > 0 {
		printer = printer.WithDelay(s.config.RefreshRate)
	}

	var err error
	s.spinner, err = printer.Start(message)
	if err != nil {
		return fmt.Errorf("failed to start spinner: %w", err)
	}

	s.active = true
	return nil
}

// Update updates the spinner message.
func (s *Spinner) Update(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled || !s.active || s.spinner == nil {
		return nil
	}

	s.spinner.UpdateText(message)
	return nil
}

// Success marks the spinner as successful.
func (s *Spinner) Success(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled || !s.active || s.spinner == nil {
		return nil
	}

	s.spinner.Success(message)
	s.active = false
	return nil
}

// Failure marks the spinner as failed.
func (s *Spinner) Failure(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled || !s.active || s.spinner == nil {
		return nil
	}

	s.spinner.Fail(message)
	s.active = false
	return nil
}

// Stop stops the spinner.
func (s *Spinner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.spinner == nil {
		return nil
	}

	_ = s.spinner.Stop()
	s.active = false
	return nil
}

// IsActive returns true if the spinner is active.
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NoopProgress is a progress indicator that does nothing.
type NoopProgress struct{}

// NewNoopProgress creates a new no-op progress indicator.
func NewNoopProgress() *NoopProgress {
	return &NoopProgress{}
}

// Start does nothing.
func (n *NoopProgress) Start(message string) error { return nil }

// Update does nothing.
func (n *NoopProgress) Update(message string) error { return nil }

// Success does nothing.
func (n *NoopProgress) Success(message string) error { return nil }

// Failure does nothing.
func (n *NoopProgress) Failure(message string) error { return nil }

// Stop does nothing.
func (n *NoopProgress) Stop() error { return nil }

// IsActive always returns false.
func (n *NoopProgress) IsActive() bool { return false }

// New creates a new progress indicator based on the config.
func New(config *Config) Progress {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return NewNoopProgress()
	}

	switch config.Type {
	case TypeSpinner:
		return NewSpinner(config)
	case TypeOverlay:
		return NewOverlay(config)
	case TypeNone:
		return NewNoopProgress()
	default:
		return NewSpinner(config)
	}
}
