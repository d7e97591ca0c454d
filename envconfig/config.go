// Package envconfig reads configuration from BLD_* environment variables.
// Flags take precedence; the environment fills in defaults so scripted runs
// do not need to repeat them.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Var reads an environment variable, trimming whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool returns a getter for a boolean variable, false when unset.
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// String returns a getter for a plain string variable.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// LogLevel maps BLD_DEBUG to a slog level: unset is info, a truthy value is
// debug, and a numeric value is used directly.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("BLD_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			level = slog.Level(i)
		}
	}
	return level
}

// Models returns the model directory, BLD_MODELS or a per-user default.
func Models() string {
	if s := Var("BLD_MODELS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".blended-diffusion", "models")
}

var (
	// Device selects the execution provider (BLD_DEVICE, "cpu" or "cuda").
	Device = String("BLD_DEVICE")
	// OrtLibrary points at libonnxruntime when it is not in a standard
	// location (BLD_ORT_LIBRARY).
	OrtLibrary = String("BLD_ORT_LIBRARY")
	// OnnxDir overrides the exported-graph directory inside the model dir
	// (BLD_ONNX_DIR).
	OnnxDir = String("BLD_ONNX_DIR")
	// NoProgress disables terminal progress rendering (BLD_NOPROGRESS).
	NoProgress = Bool("BLD_NOPROGRESS")
)

// EnvVar describes one configuration variable for help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists every supported variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BLD_DEBUG":       {"BLD_DEBUG", LogLevel(), "Show additional debug information (e.g. BLD_DEBUG=1)"},
		"BLD_DEVICE":      {"BLD_DEVICE", Device(), "Execution provider, cpu or cuda (default cpu)"},
		"BLD_MODELS":      {"BLD_MODELS", Models(), "The path to the models directory"},
		"BLD_ONNX_DIR":    {"BLD_ONNX_DIR", OnnxDir(), "Override the exported ONNX graph directory"},
		"BLD_ORT_LIBRARY": {"BLD_ORT_LIBRARY", OrtLibrary(), "Path to the ONNX Runtime shared library"},
		"BLD_NOPROGRESS":  {"BLD_NOPROGRESS", NoProgress(), "Disable terminal progress rendering"},
	}
}
