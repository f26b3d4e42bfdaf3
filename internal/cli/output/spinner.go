package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated progress indicator on a TTY. It is a no-op
// when the renderer is not in text mode.
type Spinner struct {
	w       io.Writer
	message string
	enabled bool

	mu   sync.Mutex
	done chan struct{}
}

// NewSpinner creates a spinner bound to the renderer's error writer so
// it never corrupts piped stdout.
func (r *Renderer) NewSpinner(message string) *Spinner {
	return &Spinner{
		w:       r.errOut,
		message: message,
		enabled: r.EffectiveMode() == ModeText && r.isTTY,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.done != nil {
		return
	}
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
				frame++
			}
		}
	}(s.done)
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	if s.enabled {
		_, _ = fmt.Fprint(s.w, "\r\033[K")
	}
}

// Success stops the spinner and prints a completion message.
func (s *Spinner) Success(message string) {
	s.Stop()
	if s.enabled {
		_, _ = fmt.Fprintf(s.w, "✓ %s\n", message)
	}
}

// Fail stops the spinner and prints a failure message.
func (s *Spinner) Fail(message string) {
	s.Stop()
	if s.enabled {
		_, _ = fmt.Fprintf(s.w, "✗ %s\n", message)
	}
}
