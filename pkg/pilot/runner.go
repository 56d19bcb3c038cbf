package pilot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/lerobot-pi0/pkg/camera"
	"github.com/gwillem/lerobot-pi0/pkg/policy"
)

// Arm is the follower hardware as the control loop sees it: an actuator
// group that can also report its current positions.
type Arm interface {
	Group
	ReadPositions(ctx context.Context) ([]float64, error)
}

// InferenceClient requests a trajectory for an observation.
type InferenceClient interface {
	Infer(ctx context.Context, obs policy.Observation) (policy.ActionResponse, error)
}

// RunnerConfig wires the control loop together.
type RunnerConfig struct {
	Arm         Arm
	ExtraGroups []Group       // written in addition to Arm
	Cameras     camera.Source // optional; nil degrades to zero frames
	Roles       map[string]string
	Client      InferenceClient // may be nil for preview-only runners
	Assembler   *policy.Assembler
	Mapper      *policy.Mapper
	// TrajectoryHz paces steps within one trajectory, ControlHz paces
	// cycles in continuous mode.
	TrajectoryHz float64
	ControlHz    float64
	Prompt       string
	Logger       zerolog.Logger
}

// Runner drives the control cycle: read state, assemble an observation,
// request a trajectory, execute it. Cycles are strictly sequential; a
// new capture never starts before the previous trajectory reached a
// terminal state, and cancellation is only honored between cycles.
type Runner struct {
	arm       Arm
	cameras   camera.Source
	roles     map[string]string
	client    InferenceClient
	asm       *policy.Assembler
	exec      *Executor
	numJoints int
	controlHz float64
	prompt    string
	log       zerolog.Logger

	updates chan StepUpdate
}

// NewRunner validates the wiring and builds the trajectory executor.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Arm == nil {
		return nil, fmt.Errorf("no follower arm configured")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("no observation assembler configured")
	}
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("no action mapper configured")
	}
	if cfg.ControlHz <= 0 {
		return nil, fmt.Errorf("control frequency must be positive, got %g", cfg.ControlHz)
	}

	r := &Runner{
		arm:       cfg.Arm,
		cameras:   cfg.Cameras,
		roles:     cfg.Roles,
		client:    cfg.Client,
		asm:       cfg.Assembler,
		numJoints: cfg.Mapper.CommandLen() - 1,
		controlHz: cfg.ControlHz,
		prompt:    cfg.Prompt,
		log:       cfg.Logger,
		updates:   make(chan StepUpdate, 1),
	}

	groups := append([]Group{cfg.Arm}, cfg.ExtraGroups...)
	exec, err := NewExecutor(ExecutorConfig{
		Groups: groups,
		Mapper: cfg.Mapper,
		Hz:     cfg.TrajectoryHz,
		Logger: cfg.Logger,
		OnStep: r.publish,
	})
	if err != nil {
		return nil, err
	}
	r.exec = exec

	return r, nil
}

// Updates returns a channel receiving per-step execution updates.
func (r *Runner) Updates() <-chan StepUpdate {
	return r.updates
}

func (r *Runner) publish(u StepUpdate) {
	select {
	case r.updates <- u:
	default:
		// Drop the stale update if nobody is reading.
		select {
		case <-r.updates:
		default:
		}
		r.updates <- u
	}
}

// Cycle performs one capture, inference and trajectory execution pass.
// Transport failures (bus read, inference round trip) terminate the
// cycle and surface as errors; trajectory-level failures are reported
// through the Result.
func (r *Runner) Cycle(ctx context.Context) (Result, error) {
	if r.client == nil {
		return Result{}, fmt.Errorf("no inference client configured")
	}
	raw, err := r.arm.ReadPositions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read arm state: %w", err)
	}
	if len(raw) != r.numJoints+1 {
		return Result{}, fmt.Errorf("arm reported %d positions, want %d", len(raw), r.numJoints+1)
	}
	state := policy.State{Joints: raw[:r.numJoints], Gripper: raw[r.numJoints]}

	obs, err := r.asm.Assemble(state, r.captureFrames(ctx), r.prompt)
	if err != nil {
		return Result{}, fmt.Errorf("assemble observation: %w", err)
	}

	resp, err := r.client.Infer(ctx, obs)
	if err != nil {
		return Result{}, fmt.Errorf("inference: %w", err)
	}

	res := r.exec.Execute(ctx, resp)
	if res.Status == StepFailed {
		r.log.Warn().
			Int("step", res.FailedStep).
			Err(res.Err).
			Msg("trajectory aborted, will need a fresh one")
	}
	return res, nil
}

// captureFrames collects frames keyed by camera role. A missing or
// failing camera degrades to no frame for that role; the assembler
// substitutes zeros.
func (r *Runner) captureFrames(ctx context.Context) map[string]camera.Frame {
	if r.cameras == nil {
		return nil
	}
	byName, err := r.cameras.Frames(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("camera capture failed, using zero frames")
		return nil
	}
	frames := make(map[string]camera.Frame, len(r.roles))
	for role, source := range r.roles {
		if f, ok := byName[source]; ok {
			frames[role] = f
		}
	}
	return frames
}

// Run executes n trajectories, asking confirm between them. n < 0 runs
// until confirm declines. Cancellation is checked between cycles only.
func (r *Runner) Run(ctx context.Context, n int, confirm func(done int) bool) error {
	for done := 0; n < 0 || done < n; {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.Cycle(ctx)
		if err != nil {
			return err
		}
		done++
		r.log.Info().
			Stringer("status", res.Status).
			Int("trajectory", done).
			Msg("trajectory finished")

		if n < 0 || done < n {
			if confirm == nil || !confirm(done) {
				return nil
			}
		}
	}
	return nil
}

// RunContinuous requests and executes trajectories back to back, pacing
// cycle starts at the configured control frequency. A cycle that
// overruns its budget starts the next one immediately.
func (r *Runner) RunContinuous(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / r.controlHz)
	r.log.Info().Float64("control_hz", r.controlHz).Msg("continuous control started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if _, err := r.Cycle(ctx); err != nil {
			return err
		}
		if d := period - time.Since(start); d > 0 {
			r.log.Debug().Dur("wait", d).Msg("waiting before next trajectory")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
	}
}

// Preview captures and displays camera frames without running
// inference, until the display declines or ctx is cancelled.
func (r *Runner) Preview(ctx context.Context) error {
	r.log.Info().Msg("camera preview started")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !r.asm.Show(r.captureFrames(ctx)) {
				r.log.Info().Msg("camera preview closed")
				return nil
			}
		}
	}
}
