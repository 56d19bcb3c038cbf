package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/lerobot-pi0/pkg/camera"
	"github.com/gwillem/lerobot-pi0/pkg/pilot"
	"github.com/gwillem/lerobot-pi0/pkg/policy"
	"github.com/gwillem/lerobot-pi0/pkg/robot"
)

// policyFlags are shared by the commands that talk to the policy
// server. Set flags override the config file.
type policyFlags struct {
	Host    string  `long:"host" description:"Policy server host"`
	Port    int     `long:"port" description:"Policy server port"`
	Prompt  string  `long:"prompt" description:"Task prompt sent with every observation"`
	Hz      float64 `long:"hz" description:"Trajectory execution frequency"`
	Timeout int     `long:"timeout-ms" description:"Inference round-trip timeout in ms, 0 waits forever"`
}

func (f *policyFlags) apply(p *robot.PolicyConfig) {
	if f.Host != "" {
		p.Host = f.Host
	}
	if f.Port != 0 {
		p.Port = f.Port
	}
	if f.Prompt != "" {
		p.Prompt = f.Prompt
	}
	if f.Hz != 0 {
		p.TrajectoryHz = f.Hz
	}
	if f.Timeout != 0 {
		p.InferTimeoutMs = f.Timeout
	}
}

func newConsoleLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}

// loadConfig reads the config file and fills unset policy fields with
// defaults, so hand-edited partial configs keep working.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("no configuration found, run 'lerobot-pi0 setup' first: %w", err)
	}
	if len(cfg.Followers) == 0 {
		return nil, fmt.Errorf("no follower arms configured, run 'lerobot-pi0 setup' first")
	}
	def := robot.DefaultPolicyConfig()
	p := &cfg.Policy
	if p.Host == "" {
		p.Host = def.Host
	}
	if p.Port == 0 {
		p.Port = def.Port
	}
	if p.Prompt == "" {
		p.Prompt = def.Prompt
	}
	if p.TrajectoryHz == 0 {
		p.TrajectoryHz = def.TrajectoryHz
	}
	if p.ControlHz == 0 {
		p.ControlHz = def.ControlHz
	}
	if p.GripperConvention == "" {
		p.GripperConvention = def.GripperConvention
	}
	if len(p.JointRanges) == 0 {
		p.JointRanges = def.JointRanges
	}
	if p.GripperRange == (policy.Range{}) {
		p.GripperRange = def.GripperRange
	}
	if len(p.CameraRoles) == 0 {
		p.CameraRoles = def.CameraRoles
	}
	return cfg, nil
}

// buildRunner connects the follower arms and, unless previewOnly is
// set, dials the policy server. The returned cleanup disables torque
// and closes everything.
func buildRunner(ctx context.Context, cfg *robot.Config, display policy.DisplayFunc,
	logger zerolog.Logger, previewOnly bool) (*pilot.Runner, func(), error) {

	pc := cfg.Policy
	if err := pc.Validate(); err != nil {
		return nil, nil, fmt.Errorf("policy configuration: %w", err)
	}

	names := make([]string, 0, len(cfg.Followers))
	for name := range cfg.Followers {
		names = append(names, name)
	}
	sort.Strings(names)

	var arms []*robot.Arm
	cleanup := func() {
		for _, a := range arms {
			a.Disable(context.Background())
			a.Close()
		}
	}

	for _, name := range names {
		ac := cfg.Followers[name]
		if !ac.IsCalibrated() {
			cleanup()
			return nil, nil, fmt.Errorf("arm %s not calibrated, run 'lerobot-pi0 setup' first", name)
		}
		arm, err := robot.NewArm(name, ac.Port, ac.Calibration)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect arm %s: %w", name, err)
		}
		arms = append(arms, arm)
		if err := arm.Enable(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("enable arm %s: %w", name, err)
		}
		logger.Info().Str("arm", name).Str("port", ac.Port).Msg("follower arm connected")
	}

	roles := make([]string, 0, len(pc.CameraRoles))
	for role := range pc.CameraRoles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	asm, err := policy.NewAssembler(pc.Ranges(), roles, camera.DefaultShape, display)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	conv, err := policy.ParseGripperConvention(pc.GripperConvention)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	mapper, err := policy.NewMapper(pc.Ranges(), robot.NumJoints, conv)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var client pilot.InferenceClient
	var closeClient func()
	if !previewOnly {
		c, err := policy.Dial(ctx, policy.ClientConfig{
			Host:    pc.Host,
			Port:    pc.Port,
			Timeout: time.Duration(pc.InferTimeoutMs) * time.Millisecond,
			Logger:  logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		client = c
		closeClient = func() { c.Close() }
		logger.Info().Str("host", pc.Host).Int("port", pc.Port).Msg("policy server connected")
	}

	var extra []pilot.Group
	for _, a := range arms[1:] {
		extra = append(extra, a)
	}

	runner, err := pilot.NewRunner(pilot.RunnerConfig{
		Arm:          arms[0],
		ExtraGroups:  extra,
		Cameras:      nil, // capture backends are wired by embedders
		Roles:        pc.CameraRoles,
		Client:       client,
		Assembler:    asm,
		Mapper:       mapper,
		TrajectoryHz: pc.TrajectoryHz,
		ControlHz:    pc.ControlHz,
		Prompt:       pc.Prompt,
		Logger:       logger,
	})
	if err != nil {
		if closeClient != nil {
			closeClient()
		}
		cleanup()
		return nil, nil, err
	}

	full := func() {
		if closeClient != nil {
			closeClient()
		}
		cleanup()
	}
	return runner, full, nil
}
