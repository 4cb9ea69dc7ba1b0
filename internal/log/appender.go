package log

import (
	"errors"
	"io"
	"sync"
)

// MultiWriter copies every log line to all appenders. A failing appender
// does not stop the others; their errors are joined.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Add registers another appender.
func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, w)
	m.mu.Unlock()
	return m
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}
