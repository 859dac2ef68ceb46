package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials before log lines reach a sink
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for the credentials conclave handles:
// provider API keys and bearer tokens
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`(?i)(api[_-]?key)("?\s*[:=]\s*"?)[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		if pattern.NumSubexp() >= 2 {
			s = pattern.ReplaceAllString(s, "${1}${2}"+redacted)
			continue
		}
		s = pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it on
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success since callers account for the unredacted input
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
