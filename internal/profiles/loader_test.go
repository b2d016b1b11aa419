package profiles

import (
	"os"
	"path/filepath"
	"testing"
)

const validProfileJSON = `{
  "name": "azd",
  "model": "Oriental Motor AZD-KD",
  "registers": {
    "driver_input": 125,
    "operation_id": 124,
    "status_output": 286,
    "alarm_monitor": 287,
    "feedback_pos": 288,
    "retract_vel": 290
  },
  "status_bits": {
    "move": 8192,
    "ready": 32,
    "in_pos": 16384,
    "alarm": 128,
    "home_end": 16
  }
}`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func TestLoadValidProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "azd", validProfileJSON)

	loader, err := NewLoader([]string{dir})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	profile, err := loader.Load("azd")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if profile.Name != "azd" {
		t.Errorf("name = %q, want %q", profile.Name, "azd")
	}
	if profile.Registers.StatusOutput != 286 {
		t.Errorf("status output register = %d, want 286", profile.Registers.StatusOutput)
	}
	if profile.Bits.Move != 8192 {
		t.Errorf("move bit = %d, want 8192", profile.Bits.Move)
	}
}

func TestLoadCachesProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "azd", validProfileJSON)

	loader, err := NewLoader([]string{dir})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	first, err := loader.Load("azd")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	// Deleting the file must not matter once cached.
	if err := os.Remove(filepath.Join(dir, "azd.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	second, err := loader.Load("azd")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first != second {
		t.Error("second load returned a different instance, want cached")
	}
}

func TestLoadSearchesPathsInOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeProfile(t, second, "cvd", validProfileJSON)

	loader, err := NewLoader([]string{first, second})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	if _, err := loader.Load("cvd"); err != nil {
		t.Fatalf("Load from second search path: %v", err)
	}
}

func TestLoadMissingProfile(t *testing.T) {
	loader, err := NewLoader([]string{t.TempDir()})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	if _, err := loader.Load("nope"); err == nil {
		t.Error("Load succeeded for missing profile, want error")
	}
}

func TestLoadRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{{{`},
		{"missing registers", `{"name": "x", "model": "y", "status_bits": {"move": 1, "ready": 2, "alarm": 4, "home_end": 8}}`},
		{"register out of range", `{
			"name": "x", "model": "y",
			"registers": {"driver_input": 125, "operation_id": 124, "status_output": 286, "alarm_monitor": 287, "feedback_pos": 99999},
			"status_bits": {"move": 1, "ready": 2, "alarm": 4, "home_end": 8}
		}`},
		{"unknown register key", `{
			"name": "x", "model": "y",
			"registers": {"driver_input": 125, "operation_id": 124, "status_output": 286, "alarm_monitor": 287, "feedback_pos": 288, "bogus": 1},
			"status_bits": {"move": 1, "ready": 2, "alarm": 4, "home_end": 8}
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeProfile(t, dir, "bad", tt.content)

			loader, err := NewLoader([]string{dir})
			if err != nil {
				t.Fatalf("NewLoader: %v", err)
			}

			if _, err := loader.Load("bad"); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}
