package progress

import (
	"io"
	"time"
)

// Type defines the type of progress indicator.
type Type string

const (
	// TypeSpinner shows a pterm spinner.
	TypeSpinner Type = "spinner"
	// TypeOverlay shows a single-line overlay spinner that redraws in place.
	TypeOverlay Type = "overlay"
	// TypeNone disables progress indicators.
	TypeNone Type = "none"
)

// Progress is the interface for all progress indicators.
type Progress interface {
	// Start starts the progress indicator with a message.
	Start(message string) error

	// Update updates the progress message.
	Update(message string) error

	// Success marks the progress as successful.
	Success(message string) error

	// Failure marks the progress as failed.
	Failure(message string) error

	// Stop stops the progress indicator.
	Stop() error

	// IsActive returns true if the progress indicator is active.
	IsActive() bool
}

// Config contains configuration for progress indicators.
type Config struct {
	// Type is the type of progress indicator to use.
	Type Type

	// Enabled determines if progress indicators are shown.
	Enabled bool

	// Message is shown while loading.
	Message string

	// Writer is where to write progress output.
	Writer io.Writer

	// RefreshRate is how often to redraw the spinner.
	RefreshRate time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Type:        TypeSpinner,
		Enabled:     true,
		Message:     "Refreshing session...",
		RefreshRate: 100 * time.Millisecond,
	}
}
