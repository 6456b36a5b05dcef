package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motors.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
interface: can0
motors:
  - id: 1
    model: O2
    limit_speed: 4.0
    limit_current: 10.0
    min_angle: -1.57
    max_angle: 1.57
  - id: 2
    model: O5
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Interface != "can0" {
		t.Errorf("interface = %q, want can0", config.Interface)
	}
	if len(config.Motors) != 2 {
		t.Fatalf("got %d motors, want 2", len(config.Motors))
	}

	mc, ok := config.Motor(1)
	if !ok {
		t.Fatal("motor 1 not found")
	}
	if mc.Model != "O2" || mc.LimitSpeed != 4.0 || mc.LimitCurrent != 10.0 {
		t.Errorf("motor 1 = %+v", mc)
	}
	if !mc.HasAngleLimits() {
		t.Error("motor 1 should have angle limits")
	}

	mc, ok = config.Motor(2)
	if !ok {
		t.Fatal("motor 2 not found")
	}
	if mc.HasAngleLimits() {
		t.Error("motor 2 should not have angle limits")
	}

	if _, ok := config.Motor(9); ok {
		t.Error("motor 9 resolved despite not being configured")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file did not fail")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing interface",
			"motors:\n  - id: 1\n    model: O2\n",
			"interface",
		},
		{
			"no motors",
			"interface: can0\n",
			"at least one motor",
		},
		{
			"id zero",
			"interface: can0\nmotors:\n  - id: 0\n    model: O2\n",
			"out of range",
		},
		{
			"id too large",
			"interface: can0\nmotors:\n  - id: 128\n    model: O2\n",
			"out of range",
		},
		{
			"duplicate id",
			"interface: can0\nmotors:\n  - id: 3\n    model: O2\n  - id: 3\n    model: O2\n",
			"duplicate",
		},
		{
			"unknown model",
			"interface: can0\nmotors:\n  - id: 1\n    model: X9\n",
			"unknown model",
		},
		{
			"inverted limits",
			"interface: can0\nmotors:\n  - id: 1\n    model: O2\n    min_angle: 1.0\n    max_angle: -1.0\n",
			"min_angle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("invalid config did not fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckBounds(t *testing.T) {
	path := writeConfig(t, `
interface: can0
motors:
  - id: 1
    model: O2
    min_angle: -1.57
    max_angle: 1.57
  - id: 2
    model: O2
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if err := config.CheckBounds(1, 1.0); err != nil {
		t.Errorf("in-limits target rejected: %v", err)
	}
	if err := config.CheckBounds(1, 2.0); err == nil {
		t.Error("target beyond joint limits accepted")
	}

	// Motors without joint limits fall back to the model range.
	if err := config.CheckBounds(2, 12.0); err != nil {
		t.Errorf("in-range target rejected: %v", err)
	}
	if err := config.CheckBounds(2, 13.0); err == nil {
		t.Error("target beyond model range accepted")
	}

	if err := config.CheckBounds(9, 0); err == nil {
		t.Error("unconfigured motor accepted")
	}
}

func TestParseTargets(t *testing.T) {
	path := writeConfig(t, `
interface: can0
motors:
  - id: 1
    model: O2
  - id: 2
    model: O2
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	app := &MotionApp{config: config}
	targets, err := app.parseTargets("1=0.5, 2=-0.3")
	if err != nil {
		t.Fatalf("parseTargets failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].id != 1 || targets[0].angle != 0.5 {
		t.Errorf("target 0 = %+v", targets[0])
	}
	if targets[1].id != 2 || targets[1].angle != -0.3 {
		t.Errorf("target 1 = %+v", targets[1])
	}

	for _, bad := range []string{"", "1", "1=x", "x=0.5", "9=0.5", "1=100"} {
		if _, err := app.parseTargets(bad); err == nil {
			t.Errorf("parseTargets(%q) did not fail", bad)
		}
	}
}
