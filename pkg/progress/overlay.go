package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Overlay is a lightweight single-line spinner. It suits output that is
// interleaved with log lines, where the pterm spinner would be redrawn
// over them.
type Overlay struct {
	spinner *spinner.Spinner
	config  *Config
	active  bool
	mu      sync.Mutex
}

// NewOverlay creates a new overlay indicator.
func NewOverlay(config *Config) *Overlay {
	if config == nil {
		config = DefaultConfig()
	}

	return &Overlay{
		config: config,
	}
}

// Start shows the overlay with a message.
func (o *Overlay) Start(message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.config.Enabled {
		return nil
	}

	if o.active {
		return fmt.Errorf("overlay already active")
	}

	rate := o.config.RefreshRate
	if rate <= 0 {
		rate = 100 * time.Millisecond
	}

	out := o.config.Writer
	if out == nil {
		out = os.Stderr
	}

	o.spinner = spinner.New(spinner.CharSets[14], rate,
		spinner.WithWriter(out),
		spinner.WithSuffix(" "+message),
		spinner.WithHiddenCursor(true),
	)
	o.spinner.Start()

	o.active = true
	return nil
}

// Update replaces the overlay message.
func (o *Overlay) Update(message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active || o.spinner == nil {
		return nil
	}

	o.spinner.Lock()
	o.spinner.Suffix = " " + message
	o.spinner.Unlock()
	return nil
}

// Success stops the overlay and leaves a success line.
func (o *Overlay) Success(message string) error {
	return o.finish("✓ " + message)
}

// Failure stops the overlay and leaves a failure line.
func (o *Overlay) Failure(message string) error {
	return o.finish("✗ " + message)
}

// Stop hides the overlay.
func (o *Overlay) Stop() error {
	return o.finish("")
}

// IsActive returns true if the overlay is shown.
func (o *Overlay) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Overlay) finish(final string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active || o.spinner == nil {
		return nil
	}

	if final != "" {
		o.spinner.FinalMSG = final + "\n"
	}
	o.spinner.Stop()
	o.active = false
	return nil
}
