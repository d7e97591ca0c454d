package progress

import (
	"strings"
	"time"
)

// Spinner marks an operation with no measurable progress, like loading the
// model sessions.
type Spinner struct {
	message string
	parts   []string
	value   int

	ticker  *time.Ticker
	started time.Time
	stopped time.Time
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{
		message: message,
		parts: []string{
			"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏",
		},
		started: time.Now(),
	}
	go s.start()
	return s
}

func (s *Spinner) String() string {
	var sb strings.Builder
	if message := strings.TrimSpace(s.message); message != "" {
		sb.WriteString(message)
		sb.WriteString(" ")
	}

	if s.stopped.IsZero() {
		sb.WriteString(s.parts[s.value])
		sb.WriteString(" ")
	}

	return sb.String()
}

func (s *Spinner) start() {
	s.ticker = time.NewTicker(100 * time.Millisecond)
	for range s.ticker.C {
		s.value = (s.value + 1) % len(s.parts)
		if !s.stopped.IsZero() {
			return
		}
	}
}

func (s *Spinner) Stop() {
	if s.stopped.IsZero() {
		s.stopped = time.Now()
	}
}
