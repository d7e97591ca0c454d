package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type staticState struct {
	value string
}

func (s *staticState) String() string {
	return s.value
}

func TestProgressAddAndStop(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Add(&staticState{value: "loading"})
	p.Add(&staticState{value: "denoising"})
	if len(p.states) != 2 {
		t.Errorf("states count = %d, want 2", len(p.states))
	}

	time.Sleep(150 * time.Millisecond)

	if !p.Stop() {
		t.Error("first Stop should report it stopped the ticker")
	}
	if p.Stop() {
		t.Error("second Stop should be a no-op")
	}

	if out := buf.String(); !strings.Contains(out, "denoising") {
		t.Errorf("output missing state line: %q", out)
	}
}

func TestStepBar(t *testing.T) {
	bar := NewStepBar("denoising", 50)

	out := bar.String()
	if !strings.Contains(out, "0%") || !strings.Contains(out, "0/50") {
		t.Errorf("initial bar = %q", out)
	}

	bar.Set(25)
	out = bar.String()
	if !strings.Contains(out, "50%") || !strings.Contains(out, "25/50") {
		t.Errorf("midway bar = %q", out)
	}

	bar.Set(50)
	if out = bar.String(); !strings.Contains(out, "100%") {
		t.Errorf("finished bar = %q", out)
	}
}

func TestStepBarZeroTotal(t *testing.T) {
	bar := NewStepBar("denoising", 0)
	if out := bar.String(); !strings.Contains(out, "0/0") {
		t.Errorf("zero-total bar = %q", out)
	}
}

func TestSpinnerStopsTicking(t *testing.T) {
	s := NewSpinner("loading model")

	if out := s.String(); !strings.Contains(out, "loading model") {
		t.Errorf("spinner = %q", out)
	}

	s.Stop()
	if out := s.String(); strings.ContainsAny(out, "⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏") {
		t.Errorf("stopped spinner still shows glyph: %q", out)
	}
}
