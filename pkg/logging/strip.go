package logging

import (
	"io"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// StripWriter removes ANSI escape sequences before writing to the
// underlying writer. It reports the original length so callers that
// check n == len(p) are not confused by the shorter write.
type StripWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStripWriter wraps out
func NewStripWriter(out io.Writer) *StripWriter {
	return &StripWriter{out: out}
}

func (w *StripWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, ansi.Strip(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
