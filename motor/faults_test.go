package motor

import (
	"strings"
	"testing"
)

func TestFaultSetActive(t *testing.T) {
	set := FaultOverCurrent | FaultHallEncoder

	active := set.Active()
	if len(active) != 2 {
		t.Fatalf("got %d active faults, want 2", len(active))
	}
	if active[0] != FaultOverCurrent || active[1] != FaultHallEncoder {
		t.Errorf("active faults = %v", active)
	}

	if !set.Has(FaultOverCurrent) {
		t.Error("Has(FaultOverCurrent) = false")
	}
	if set.Has(FaultUnderVoltage) {
		t.Error("Has(FaultUnderVoltage) = true")
	}

	if active := FaultSet(0).Active(); active != nil {
		t.Errorf("empty set active faults = %v", active)
	}
}

func TestFaultSetString(t *testing.T) {
	if got := FaultSet(0).String(); got != "none" {
		t.Errorf("empty set = %q, want \"none\"", got)
	}

	got := (FaultOverTemperature | FaultUncalibrated).String()
	if !strings.Contains(got, "Over-temperature") || !strings.Contains(got, "calibrated") {
		t.Errorf("String() = %q", got)
	}
}

func TestGetFaultConfig(t *testing.T) {
	config, ok := GetFaultConfig(FaultUncalibrated)
	if !ok {
		t.Fatal("no config for FaultUncalibrated")
	}
	if config.Severity != SeverityWarning {
		t.Errorf("uncalibrated severity = %d, want warning", config.Severity)
	}

	config, ok = GetFaultConfig(FaultUnderVoltage)
	if !ok {
		t.Fatal("no config for FaultUnderVoltage")
	}
	if config.Severity != SeverityCritical {
		t.Errorf("under-voltage severity = %d, want critical", config.Severity)
	}

	if _, ok := GetFaultConfig(FaultOverCurrent | FaultHallEncoder); ok {
		t.Error("combined bits resolved to a single fault config")
	}
}
