package cmd

import (
	"strings"
	"testing"
)

func TestNewCLI(t *testing.T) {
	root := NewCLI()
	if root.Use != "blend" {
		t.Errorf("root command = %q", root.Use)
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	if !strings.Contains(strings.Join(names, " "), "edit") {
		t.Errorf("missing edit command, have %v", names)
	}
}

func TestEditFlagDefaults(t *testing.T) {
	cmd := newEditCmd()

	cases := map[string]string{
		"batch-size":     "4",
		"steps":          "50",
		"seed":           "42",
		"guidance":       "7.5",
		"blending-start": "0.25",
		"height":         "512",
		"width":          "512",
		"output":         "outputs/res.jpg",
	}
	for name, want := range cases {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("missing flag --%s", name)
			continue
		}
		if f.DefValue != want {
			t.Errorf("--%s default = %q, want %q", name, f.DefValue, want)
		}
	}
}

func TestEditRequiredFlags(t *testing.T) {
	cmd := newEditCmd()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Error("edit without flags should fail")
	}
}

func TestEditEnvDocs(t *testing.T) {
	root := NewCLI()
	edit, _, err := root.Find([]string{"edit"})
	if err != nil {
		t.Fatal(err)
	}
	usage := edit.UsageString()
	for _, v := range []string{"BLD_DEVICE", "BLD_MODELS", "BLD_ORT_LIBRARY"} {
		if !strings.Contains(usage, v) {
			t.Errorf("usage missing %s", v)
		}
	}
}
