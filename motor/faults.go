package motor

import "strings"

// FaultSet is the fault bitset a motor reports in the arbitration ID of
// its feedback frames (bits 16-21, shifted down to bits 0-5 here).
type FaultSet uint8

// Fault bits per the vendor protocol documentation.
const (
	FaultUnderVoltage    FaultSet = 1 << 0
	FaultOverCurrent     FaultSet = 1 << 1
	FaultOverTemperature FaultSet = 1 << 2
	FaultMagneticEncoder FaultSet = 1 << 3
	FaultHallEncoder     FaultSet = 1 << 4
	FaultUncalibrated    FaultSet = 1 << 5
)

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

type FaultConfig struct {
	Bit         FaultSet
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[FaultSet]FaultConfig{
	FaultUnderVoltage:    {FaultUnderVoltage, "Supply under-voltage", SeverityCritical},
	FaultOverCurrent:     {FaultOverCurrent, "Phase over-current", SeverityCritical},
	FaultOverTemperature: {FaultOverTemperature, "Over-temperature", SeverityCritical},
	FaultMagneticEncoder: {FaultMagneticEncoder, "Magnetic encoder fault", SeverityCritical},
	FaultHallEncoder:     {FaultHallEncoder, "Hall encoder fault", SeverityCritical},
	FaultUncalibrated:    {FaultUncalibrated, "Encoder not calibrated", SeverityWarning},
}

// GetFaultConfig returns the description and severity of a single fault bit.
func GetFaultConfig(fault FaultSet) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

// Active returns the individual fault bits set in the bitset.
func (f FaultSet) Active() []FaultSet {
	var faults []FaultSet
	for bit := 0; bit < 6; bit++ {
		if mask := FaultSet(1 << bit); f&mask != 0 {
			faults = append(faults, mask)
		}
	}
	return faults
}

// Has reports whether a fault bit is set.
func (f FaultSet) Has(fault FaultSet) bool {
	return f&fault != 0
}

func (f FaultSet) String() string {
	if f == 0 {
		return "none"
	}

	var parts []string
	for _, fault := range f.Active() {
		if config, ok := GetFaultConfig(fault); ok {
			parts = append(parts, config.Description)
		}
	}
	return strings.Join(parts, ", ")
}
