package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Spinner animates a message while a long operation runs. It draws only
// when colour output is enabled, so piped output stays clean.
type Spinner struct {
	frames  []string
	current int
	message string
	started time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"|", "/", "-", "\\"},
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.started = time.Now()
	if !supportsColor {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(Out, "\r%s %s%s",
					ColorProgress(s.frames[s.current]),
					s.message,
					strings.Repeat(" ", 10),
				)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			}
		}
	}()
}

// UpdateMessage updates the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop ends the animation and prints the final status with the elapsed
// time. Calling Stop more than once is a no-op.
func (s *Spinner) Stop(success bool, message string) {
	s.once.Do(func() {
		close(s.stop)
		if s.started.IsZero() {
			s.started = time.Now()
		} else {
			<-s.done
		}

		if supportsColor {
			fmt.Fprint(Out, "\r\033[K")
		}
		elapsed := FormatDuration(time.Since(s.started))
		if success {
			fmt.Fprintf(Out, "%s %s (%s)\n", ColorSuccess("OK"), message, elapsed)
		} else {
			fmt.Fprintf(Out, "%s %s (%s)\n", ColorError("FAILED"), message, elapsed)
		}
	})
}
