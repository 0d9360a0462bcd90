package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Manager holds the registered formatters and the shared configuration.
type Manager struct {
	formatters    map[string]Formatter
	defaultFormat string
	config        *FormatConfig
	out           io.Writer
}

// NewManager creates a new output manager with default formatters.
func NewManager() *Manager {
	m := &Manager{
		formatters:    make(map[string]Formatter),
		defaultFormat: "table",
		config:        NewFormatConfig(),
		out:           os.Stdout,
	}

	m.RegisterFormatter(NewJSONFormatter())
	m.RegisterFormatter(NewYAMLFormatter())
	m.RegisterFormatter(NewTableFormatter())

	return m
}

// RegisterFormatter registers a new formatter.
func (m *Manager) RegisterFormatter(formatter Formatter) {
	m.formatters[formatter.Name()] = formatter
}

// GetFormatter returns a formatter by name.
func (m *Manager) GetFormatter(name string) (Formatter, error) {
	formatter, ok := m.formatters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown output format '%s' (want one of: %s)", name, strings.Join(m.Formats(), ", "))
	}
	return formatter, nil
}

// Formats lists the registered format names.
func (m *Manager) Formats() []string {
	names := make([]string, 0, len(m.formatters))
	for name := range m.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetConfig returns the current format configuration.
func (m *Manager) GetConfig() *FormatConfig {
	return m.config
}

// SetOutput sets the writer used by Print.
func (m *Manager) SetOutput(w io.Writer) {
	m.out = w
}

// Format formats data using the specified format. An empty format means
// table.
func (m *Manager) Format(w io.Writer, data interface{}, format string) error {
	if format == "" {
		format = m.defaultFormat
	}

	formatter, err := m.GetFormatter(format)
	if err != nil {
		return err
	}

	if !formatter.Supports(data) {
		return fmt.Errorf("formatter '%s' does not support data type %T", format, data)
	}

	return formatter.Format(w, data, m.config)
}

// Print formats data to the manager's output.
func (m *Manager) Print(data interface{}, format string) error {
	return m.Format(m.out, data, format)
}
