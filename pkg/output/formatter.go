// Package output renders command results as JSON, YAML or a pterm table.
package output

import (
	"io"
)

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes data to w according to the formatter's rules.
	Format(w io.Writer, data interface{}, config *FormatConfig) error

	// Name returns the name of the formatter (e.g., "json", "yaml", "table").
	Name() string

	// Supports returns true if the formatter can handle the given data type.
	Supports(data interface{}) bool
}

// Column describes one table column.
type Column struct {
	// Field is the struct field name, json tag or map key to read.
	Field string
	// Header is the column title. Defaults to Field.
	Header string
	// Width truncates longer values when positive.
	Width int
}

// FormatConfig contains configuration options for formatting output.
type FormatConfig struct {
	// Columns selects table columns. Auto-detected when empty.
	Columns []Column

	// Pretty enables pretty-printing (for JSON)
	Pretty bool

	// Colors enables colored output
	Colors bool

	// Compact reduces whitespace in output
	Compact bool

	// ShowHeaders controls header display (for tables)
	ShowHeaders bool

	// SortBy specifies the column header to sort by (for tables)
	SortBy string

	// SortAsc controls sort direction
	SortAsc bool
}

// NewFormatConfig creates a new FormatConfig with sensible defaults.
func NewFormatConfig() *FormatConfig {
	return &FormatConfig{
		Pretty:      true,
		Colors:      true,
		ShowHeaders: true,
		SortAsc:     true,
	}
}

// WithColumns sets the table columns.
func (c *FormatConfig) WithColumns(cols ...Column) *FormatConfig {
	c.Columns = cols
	return c
}

// WithColors sets the colors option.
func (c *FormatConfig) WithColors(colors bool) *FormatConfig {
	c.Colors = colors
	return c
}

// WithCompact sets the compact option.
func (c *FormatConfig) WithCompact(compact bool) *FormatConfig {
	c.Compact = compact
	return c
}

// WithSorting sets the sorting options.
func (c *FormatConfig) WithSorting(field string, asc bool) *FormatConfig {
	c.SortBy = field
	c.SortAsc = asc
	return c
}
