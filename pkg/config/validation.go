package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/logger"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validator handles configuration validation.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate checks cfg and reports every problem at once.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg.APIURL == "" {
		v.addError("api_url", "api_url is required")
	} else if !v.isValidURL(cfg.APIURL) {
		v.addError("api_url", "api_url must be a valid http(s) URL")
	}
	if cfg.WebURL != "" && !v.isValidURL(cfg.WebURL) {
		v.addError("web_url", "web_url must be a valid http(s) URL")
	}

	v.validateStorage(&cfg.Storage)
	v.validateRefresh(&cfg.Refresh)
	v.validateLog(&cfg.Log)

	if cfg.Google.CallbackPort < 0 || cfg.Google.CallbackPort > 65535 {
		v.addError("google.callback_port", "callback_port must be between 0 and 65535")
	}
	if (cfg.Google.AuthURL == "") != (cfg.Google.TokenURL == "") {
		v.addError("google.auth_url", "auth_url and token_url must be set together")
	}
	for field, u := range map[string]string{"google.auth_url": cfg.Google.AuthURL, "google.token_url": cfg.Google.TokenURL} {
		if u != "" && !v.isValidURL(u) {
			v.addError(field, "must be a valid http(s) URL")
		}
	}

	switch cfg.Progress.Type {
	case "", "spinner", "overlay", "none":
	default:
		v.addError("progress.type", "type must be one of: spinner, overlay, none")
	}

	if cfg.Cache.TTL < 0 {
		v.addError("cache.ttl", "ttl must be non-negative")
	}
	if cfg.History.MaxEntries < 0 {
		v.addError("history.max_entries", "max_entries must be non-negative")
	}

	if len(v.errors) > 0 {
		return v.errors
	}

	return nil
}

// Validate is a shorthand for NewValidator().Validate(cfg).
func (cfg *Config) Validate() error {
	return NewValidator().Validate(cfg)
}

func (v *Validator) validateStorage(s *types.StorageConfig) {
	valid := []types.StorageType{"", types.StorageTypeFile, types.StorageTypeKeyring, types.StorageTypeMemory}
	if !slices.Contains(valid, s.Type) {
		v.addError("storage.type", "type must be one of: file, keyring, memory")
	}
}

func (v *Validator) validateRefresh(r *auth.RefreshConfig) {
	if r.RefreshBuffer < 0 {
		v.addError("refresh.buffer", "buffer must be non-negative")
	}
	if r.MinRefreshDelay < 0 {
		v.addError("refresh.min_delay", "min_delay must be non-negative")
	}
	if r.MaxRetries < 0 {
		v.addError("refresh.max_retries", "max_retries must be non-negative")
	}
	if r.RetryDelay < 0 {
		v.addError("refresh.retry_delay", "retry_delay must be non-negative")
	}
	if r.RefreshBuffer > 0 && r.MinRefreshDelay > r.RefreshBuffer {
		v.addError("refresh.min_delay", "min_delay must not exceed buffer")
	}
	if r.RedirectTo != "" && !strings.HasPrefix(r.RedirectTo, "/") {
		v.addError("refresh.redirect_to", "redirect_to must be an absolute path")
	}
}

func (v *Validator) validateLog(l *LogConfig) {
	if l.Level != "" {
		if _, err := logger.ParseLevel(l.Level); err != nil {
			v.addError("log.level", "level must be one of: debug, info, warn, error")
		}
	}
	if l.Format != "" && l.Format != "console" && l.Format != "json" {
		v.addError("log.format", "format must be one of: console, json")
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

func (v *Validator) isValidURL(urlStr string) bool {
	if urlStr == "" {
		return false
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
