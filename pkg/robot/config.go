package robot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gwillem/lerobot-pi0/pkg/policy"
)

const DefaultConfigFile = "lerobot-pi0.json"

// Config holds the full process configuration: the follower actuator
// groups and the policy settings. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Followers map[string]ArmConfig `json:"followers"`
	Policy    PolicyConfig         `json:"policy"`
}

// ArmConfig holds configuration for a single follower arm.
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data.
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// PolicyConfig holds the inference-server connection and the numeric
// conventions of the deployed policy.
type PolicyConfig struct {
	Host              string            `json:"host"`
	Port              int               `json:"port"`
	Prompt            string            `json:"prompt"`
	TrajectoryHz      float64           `json:"trajectory_hz"`
	ControlHz         float64           `json:"control_hz"`
	InferTimeoutMs    int               `json:"infer_timeout_ms"`
	GripperConvention string            `json:"gripper_convention"`
	JointRanges       []policy.Range    `json:"joint_ranges"`
	GripperRange      policy.Range      `json:"gripper_range"`
	CameraRoles       map[string]string `json:"camera_roles"` // role -> capture source name
}

// Ranges bundles the configured normalization bounds.
func (p *PolicyConfig) Ranges() policy.Ranges {
	return policy.Ranges{
		Joints:  p.JointRanges,
		Gripper: p.GripperRange,
	}
}

// DefaultPolicyConfig mirrors the original SO-100 deployment: a local
// pi0 server, 20 Hz trajectory execution, one trajectory every five
// seconds in continuous mode, and the calibrated SO-100 joint ranges.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Host:              "localhost",
		Port:              9000,
		Prompt:            "Pick up the duck",
		TrajectoryHz:      20,
		ControlHz:         0.2,
		GripperConvention: string(policy.GripperAuto),
		JointRanges: []policy.Range{
			{Min: -1, Max: 1},
			{Min: -1, Max: 200},
			{Min: -200, Max: 10},
			{Min: -200, Max: 10},
			{Min: -10, Max: 10},
		},
		GripperRange: policy.Range{Min: 0, Max: 50},
		CameraRoles: map[string]string{
			"exterior_image_1_left": "phone",
			"wrist_image_left":      "laptop",
		},
	}
}

// Validate checks the policy section. All of these are startup
// configuration errors.
func (p *PolicyConfig) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("policy host not configured")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("policy port %d out of range", p.Port)
	}
	if p.TrajectoryHz <= 0 {
		return fmt.Errorf("trajectory frequency must be positive, got %g", p.TrajectoryHz)
	}
	if p.ControlHz <= 0 {
		return fmt.Errorf("control frequency must be positive, got %g", p.ControlHz)
	}
	if p.InferTimeoutMs < 0 {
		return fmt.Errorf("inference timeout must not be negative, got %d", p.InferTimeoutMs)
	}
	if _, err := policy.ParseGripperConvention(p.GripperConvention); err != nil {
		return err
	}
	return p.Ranges().Validate()
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
