package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"
)

// Style selects a masking strategy.
type Style string

const (
	// StylePartial keeps a short prefix.
	StylePartial Style = "partial"
	// StyleFull replaces the whole value.
	StyleFull Style = "full"
	// StyleHash replaces the value with a short digest so two masked
	// values can still be compared.
	StyleHash Style = "hash"
)

// Masking configures MaskValue.
type Masking struct {
	Style       Style
	ShowChars   int
	Replacement string
}

// DefaultMasking shows the first six characters.
func DefaultMasking() Masking {
	return Masking{Style: StylePartial, ShowChars: 6, Replacement: "***"}
}

// MaskValue masks a sensitive value using the given strategy.
func MaskValue(value string, m Masking) string {
	switch m.Style {
	case StyleFull:
		return fullMask(m.Replacement)
	case StyleHash:
		return hashMask(value)
	default:
		return partialMask(value, m.ShowChars, m.Replacement)
	}
}

// MaskToken masks a bearer credential for display. The scheme prefix,
// when present, stays readable.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if scheme, rest, ok := strings.Cut(token, " "); ok {
		return scheme + " " + MaskValue(rest, DefaultMasking())
	}
	return MaskValue(token, DefaultMasking())
}

func fullMask(replacement string) string {
	if replacement == "" {
		return "***"
	}
	return replacement
}

// partialMask shows the first N characters and masks the rest. Values no
// longer than twice N are fully masked.
func partialMask(value string, showChars int, replacement string) string {
	if replacement == "" {
		replacement = "***"
	}
	if showChars <= 0 || len(value) <= showChars*2 {
		return replacement
	}
	return value[:showChars] + replacement
}

func hashMask(value string) string {
	hash := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(hash[:])[:16]
}

// MaskingWriter wraps an io.Writer and masks credentials before writing.
// Each Write is masked on its own, so callers should write whole lines.
type MaskingWriter struct {
	mu       sync.Mutex
	detector *Detector
	delegate io.Writer
}

// NewMaskingWriter creates a MaskingWriter. A nil detector uses the
// default patterns.
func NewMaskingWriter(detector *Detector, delegate io.Writer) *MaskingWriter {
	if detector == nil {
		detector = NewDetector()
	}
	return &MaskingWriter{detector: detector, delegate: delegate}
}

// Write masks p and forwards it. It reports len(p) on success so callers
// do not treat a shorter masked write as a short write.
func (w *MaskingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	masked := w.detector.MaskString(string(p))
	if _, err := io.WriteString(w.delegate, masked); err != nil {
		return 0, err
	}
	return len(p), nil
}
