package robot

import (
	"path/filepath"
	"testing"

	"github.com/gwillem/lerobot-pi0/pkg/policy"
)

func TestDefaultPolicyConfig(t *testing.T) {
	pc := DefaultPolicyConfig()
	if err := pc.Validate(); err != nil {
		t.Fatalf("default policy config is invalid: %v", err)
	}
	if len(pc.JointRanges) != NumJoints {
		t.Errorf("%d joint ranges, want %d", len(pc.JointRanges), NumJoints)
	}
	if pc.CameraRoles["exterior_image_1_left"] != "phone" {
		t.Errorf("exterior role maps to %q", pc.CameraRoles["exterior_image_1_left"])
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PolicyConfig)
	}{
		{"empty host", func(p *PolicyConfig) { p.Host = "" }},
		{"zero port", func(p *PolicyConfig) { p.Port = 0 }},
		{"port too large", func(p *PolicyConfig) { p.Port = 70000 }},
		{"zero trajectory hz", func(p *PolicyConfig) { p.TrajectoryHz = 0 }},
		{"negative control hz", func(p *PolicyConfig) { p.ControlHz = -1 }},
		{"negative timeout", func(p *PolicyConfig) { p.InferTimeoutMs = -1 }},
		{"bad gripper convention", func(p *PolicyConfig) { p.GripperConvention = "bogus" }},
		{"no joint ranges", func(p *PolicyConfig) { p.JointRanges = nil }},
		{"degenerate gripper range", func(p *PolicyConfig) { p.GripperRange = policy.Range{Min: 5, Max: 5} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := DefaultPolicyConfig()
			tt.mutate(&pc)
			if err := pc.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := &Config{
		Followers: map[string]ArmConfig{
			"main": {Port: "/dev/ttyACM0", Calibration: fullCalibration()},
		},
		Policy: DefaultPolicyConfig(),
	}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	got, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}

	arm, ok := got.Followers["main"]
	if !ok {
		t.Fatal("follower missing after round trip")
	}
	if arm.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q", arm.Port)
	}
	if !arm.IsCalibrated() {
		t.Error("calibration lost in round trip")
	}
	if arm.Calibration[Gripper].RangeMax != 3000 {
		t.Errorf("gripper range_max = %d, want 3000", arm.Calibration[Gripper].RangeMax)
	}
	if got.Policy.Prompt != cfg.Policy.Prompt {
		t.Errorf("prompt = %q, want %q", got.Policy.Prompt, cfg.Policy.Prompt)
	}
	if got.Policy.GripperRange != cfg.Policy.GripperRange {
		t.Errorf("gripper range = %+v", got.Policy.GripperRange)
	}
}

func TestLoadConfigFrom_Missing(t *testing.T) {
	if _, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing config file accepted")
	}
}
