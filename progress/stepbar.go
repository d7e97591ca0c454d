package progress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// StepBar tracks discrete sampler steps, e.g. "denoising  40% ▕███   ▏ 20/50 4.1s".
type StepBar struct {
	mu      sync.Mutex
	message string
	current int
	total   int
	started time.Time
}

func NewStepBar(message string, total int) *StepBar {
	return &StepBar{message: message, total: total, started: time.Now()}
}

// Set records the number of completed steps.
func (s *StepBar) Set(current int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = current
}

func (s *StepBar) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	termWidth, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termWidth = defaultTermWidth
	}

	var percent float64
	if s.total > 0 {
		percent = float64(s.current) / float64(s.total) * 100
	}

	elapsed := time.Since(s.started).Round(100 * time.Millisecond)
	prefix := fmt.Sprintf("%s %3.0f%% ", s.message, percent)
	suffix := fmt.Sprintf(" %d/%d %s", s.current, s.total, elapsed)

	barWidth := termWidth - len(prefix) - len(suffix) - 2
	if barWidth > s.total {
		barWidth = s.total
	}
	if barWidth < 1 {
		return prefix + suffix
	}

	filled := 0
	if s.total > 0 {
		filled = s.current * barWidth / s.total
	}
	return prefix + "▕" + strings.Repeat("█", filled) + strings.Repeat(" ", barWidth-filled) + "▏" + suffix
}
