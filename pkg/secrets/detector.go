// Package secrets keeps member credentials out of logs and command output.
package secrets

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
)

// Detector finds credentials by field name, value shape or header name.
type Detector struct {
	fieldPatterns []string
	valuePatterns []*compiledValuePattern
	headers       map[string]bool
	masking       Masking
}

type compiledValuePattern struct {
	name    string
	pattern *regexp.Regexp
}

// NewDetector builds a detector from the default patterns.
func NewDetector() *Detector {
	d, err := NewCustomDetector(DefaultFieldPatterns(), DefaultValuePatterns(), DefaultHeaders())
	if err != nil {
		panic(err)
	}
	return d
}

// NewCustomDetector builds a detector from explicit patterns.
func NewCustomDetector(fields []string, values []ValuePattern, headers []string) (*Detector, error) {
	d := &Detector{
		fieldPatterns: make([]string, 0, len(fields)),
		valuePatterns: make([]*compiledValuePattern, 0, len(values)),
		headers:       make(map[string]bool, len(headers)),
		masking:       DefaultMasking(),
	}

	for _, pattern := range fields {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid field pattern %q: %w", pattern, err)
		}
		d.fieldPatterns = append(d.fieldPatterns, strings.ToLower(pattern))
	}

	for _, vp := range values {
		regex, err := regexp.Compile(vp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid value pattern %q: %w", vp.Pattern, err)
		}
		d.valuePatterns = append(d.valuePatterns, &compiledValuePattern{name: vp.Name, pattern: regex})
	}

	for _, header := range headers {
		d.headers[strings.ToLower(header)] = true
	}

	return d, nil
}

// WithMasking sets how detected values are masked.
func (d *Detector) WithMasking(m Masking) *Detector {
	d.masking = m
	return d
}

// IsSecretField reports whether a field name indicates a credential.
func (d *Detector) IsSecretField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)
	for _, pattern := range d.fieldPatterns {
		if ok, _ := filepath.Match(pattern, lowerField); ok {
			return true
		}
	}
	return false
}

// IsSecretValue reports whether value looks like a credential and which
// pattern matched.
func (d *Detector) IsSecretValue(value string) (bool, string) {
	for _, vp := range d.valuePatterns {
		if vp.pattern.MatchString(value) {
			return true, vp.name
		}
	}
	return false, ""
}

// IsSecretHeader reports whether a header should be masked.
func (d *Detector) IsSecretHeader(headerName string) bool {
	return d.headers[strings.ToLower(headerName)]
}

// MaskString replaces every credential found in free text.
func (d *Detector) MaskString(text string) string {
	for _, vp := range d.valuePatterns {
		text = vp.pattern.ReplaceAllStringFunc(text, func(match string) string {
			return MaskValue(match, d.masking)
		})
	}
	return text
}

// MaskHeaders returns a copy of headers with credential headers masked.
func (d *Detector) MaskHeaders(headers http.Header) http.Header {
	masked := make(http.Header, len(headers))
	for name, values := range headers {
		out := make([]string, len(values))
		for i, v := range values {
			if d.IsSecretHeader(name) {
				out[i] = MaskValue(v, d.masking)
			} else {
				out[i] = d.MaskString(v)
			}
		}
		masked[name] = out
	}
	return masked
}

// MaskFields masks the values of credential fields in a decoded JSON
// document, recursing into nested objects and arrays.
func (d *Detector) MaskFields(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if s, ok := val.(string); ok && d.IsSecretField(key) {
				out[key] = MaskValue(s, d.masking)
				continue
			}
			out[key] = d.MaskFields(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = d.MaskFields(val)
		}
		return out
	case string:
		return d.MaskString(v)
	default:
		return data
	}
}
