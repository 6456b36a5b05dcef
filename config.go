package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"motor-service/motor"
)

// MotorConfig describes one actuator in the fleet configuration file.
type MotorConfig struct {
	ID           uint8   `yaml:"id"`
	Model        string  `yaml:"model"`
	LimitSpeed   float64 `yaml:"limit_speed,omitempty"`   // rad/s
	LimitCurrent float64 `yaml:"limit_current,omitempty"` // A
	MinAngle     float64 `yaml:"min_angle,omitempty"`     // rad
	MaxAngle     float64 `yaml:"max_angle,omitempty"`     // rad
}

// HasAngleLimits reports whether the config declares joint limits for
// bounds checking.
func (m MotorConfig) HasAngleLimits() bool {
	return m.MinAngle != 0 || m.MaxAngle != 0
}

// FleetConfig is the YAML description of the bus and its motors.
type FleetConfig struct {
	Interface string        `yaml:"interface"`
	Motors    []MotorConfig `yaml:"motors"`
}

// LoadConfig reads and validates a fleet configuration file.
func LoadConfig(path string) (*FleetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %v", err)
	}

	var config FleetConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks IDs, models and joint limits for consistency.
func (c *FleetConfig) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("config: interface name is required")
	}
	if len(c.Motors) == 0 {
		return fmt.Errorf("config: at least one motor is required")
	}

	seen := make(map[uint8]bool, len(c.Motors))
	for _, mc := range c.Motors {
		if mc.ID < 1 || mc.ID > 127 {
			return fmt.Errorf("config: motor id %d out of range 1-127", mc.ID)
		}
		if seen[mc.ID] {
			return fmt.Errorf("config: duplicate motor id %d", mc.ID)
		}
		seen[mc.ID] = true

		if _, ok := motor.ModelByName(mc.Model); !ok {
			return fmt.Errorf("config: motor %d: unknown model %q", mc.ID, mc.Model)
		}
		if mc.HasAngleLimits() && mc.MinAngle >= mc.MaxAngle {
			return fmt.Errorf("config: motor %d: min_angle %.3f >= max_angle %.3f",
				mc.ID, mc.MinAngle, mc.MaxAngle)
		}
	}

	return nil
}

// Motor returns the configuration for an ID.
func (c *FleetConfig) Motor(id uint8) (MotorConfig, bool) {
	for _, mc := range c.Motors {
		if mc.ID == id {
			return mc, true
		}
	}
	return MotorConfig{}, false
}

// CheckBounds verifies a target angle against a motor's configured joint
// limits. Motors without limits accept any angle within the model range.
func (c *FleetConfig) CheckBounds(id uint8, angle float64) error {
	mc, ok := c.Motor(id)
	if !ok {
		return fmt.Errorf("motor %d not in config", id)
	}

	if mc.HasAngleLimits() {
		if angle < mc.MinAngle || angle > mc.MaxAngle {
			return fmt.Errorf("motor %d: target %.3f rad outside joint limits [%.3f, %.3f]",
				id, angle, mc.MinAngle, mc.MaxAngle)
		}
		return nil
	}

	model, _ := motor.ModelByName(mc.Model)
	if angle < model.PosMin || angle > model.PosMax {
		return fmt.Errorf("motor %d: target %.3f rad outside model range [%.3f, %.3f]",
			id, angle, model.PosMin, model.PosMax)
	}
	return nil
}
