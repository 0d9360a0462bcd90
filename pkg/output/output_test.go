package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type sessionRow struct {
	Email     string        `json:"email" yaml:"email"`
	ExpiresIn time.Duration `json:"expires_in" yaml:"expires_in"`
	Note      string        `json:"note,omitempty" yaml:"note,omitempty"`
	secret    string
}

func TestJSONFormatter(t *testing.T) {
	f := NewJSONFormatter()
	if f.Name() != "json" {
		t.Errorf("Expected name 'json', got '%s'", f.Name())
	}

	var buf bytes.Buffer
	row := sessionRow{Email: "rider@example.com", ExpiresIn: time.Minute}
	if err := f.Format(&buf, row, nil); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"email\"") {
		t.Errorf("expected indented output, got %s", buf.String())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := decoded["note"]; ok {
		t.Error("omitempty field should be dropped")
	}

	buf.Reset()
	if err := f.Format(&buf, row, NewFormatConfig().WithCompact(true)); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("compact output should be one line, got %q", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	f := NewYAMLFormatter()

	var buf bytes.Buffer
	if err := f.Format(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "null\n" {
		t.Errorf("nil = %q", buf.String())
	}

	buf.Reset()
	if err := f.Format(&buf, sessionRow{Email: "rider@example.com"}, nil); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["email"] != "rider@example.com" {
		t.Errorf("email = %v", decoded["email"])
	}
}

func TestTableFormatterSupports(t *testing.T) {
	formatter := NewTableFormatter()

	tests := []struct {
		name     string
		data     interface{}
		expected bool
	}{
		{"nil", nil, false},
		{"string", "test", false},
		{"int", 42, false},
		{"map", map[string]string{"key": "value"}, true},
		{"empty map", map[string]string{}, false},
		{"slice", []sessionRow{{Email: "a"}}, true},
		{"empty slice", []sessionRow{}, false},
		{"struct", sessionRow{}, true},
		{"nil pointer", (*sessionRow)(nil), false},
		{"pointer", &sessionRow{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatter.Supports(tt.data); got != tt.expected {
				t.Errorf("Supports() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	config := NewFormatConfig().WithColors(false)

	row := &sessionRow{Email: "rider@example.com", ExpiresIn: 90*time.Second + 400*time.Millisecond, secret: "x"}
	if err := NewTableFormatter().Format(&buf, row, config); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"FIELD", "email", "rider@example.com", "expires_in", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "note") || strings.Contains(out, "secret") {
		t.Errorf("empty and unexported fields should be skipped:\n%s", out)
	}
}

func TestTableFormatter_SliceSortedWithColumns(t *testing.T) {
	var buf bytes.Buffer
	config := NewFormatConfig().
		WithColors(false).
		WithColumns(Column{Field: "email", Header: "MEMBER", Width: 10}).
		WithSorting("member", true)

	rows := []sessionRow{{Email: "zed@example.com"}, {Email: "amy@example.com"}}
	if err := NewTableFormatter().Format(&buf, rows, config); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "EXPIRES_IN") {
		t.Errorf("only configured columns should render:\n%s", out)
	}
	amy, zed := strings.Index(out, "amy@exa..."), strings.Index(out, "zed@exa...")
	if amy < 0 || zed < 0 || amy > zed {
		t.Errorf("expected truncated, sorted rows:\n%s", out)
	}
}

func TestTableFormatter_Map(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]string{"road_captain": "Road Captain", "director": "Director"}

	if err := NewTableFormatter().Format(&buf, data, NewFormatConfig().WithColors(false)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Index(out, "director") > strings.Index(out, "road_captain") {
		t.Errorf("keys should be sorted:\n%s", out)
	}
}

func TestTableFormatter_Errors(t *testing.T) {
	f := NewTableFormatter()
	var buf bytes.Buffer

	if err := f.Format(&buf, nil, nil); err == nil {
		t.Error("expected error for nil")
	}
	if err := f.Format(&buf, []sessionRow{}, nil); err == nil {
		t.Error("expected error for empty slice")
	}
	if err := f.Format(&buf, 42, nil); err == nil {
		t.Error("expected error for int")
	}
}

func TestManager(t *testing.T) {
	m := NewManager()

	if got := strings.Join(m.Formats(), ","); got != "json,table,yaml" {
		t.Errorf("Formats() = %s", got)
	}
	if _, err := m.GetFormatter("JSON"); err != nil {
		t.Errorf("lookup should be case-insensitive: %v", err)
	}
	if _, err := m.GetFormatter("xml"); err == nil || !strings.Contains(err.Error(), "json, table, yaml") {
		t.Errorf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	m.SetOutput(&buf)
	m.GetConfig().WithColors(false)
	if err := m.Print(sessionRow{Email: "rider@example.com"}, ""); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if !strings.Contains(buf.String(), "FIELD") {
		t.Errorf("default format should be table:\n%s", buf.String())
	}

	if err := m.Format(&buf, "scalar", "table"); err == nil {
		t.Error("table should reject scalars")
	}
}
