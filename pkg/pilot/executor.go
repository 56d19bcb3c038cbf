// Package pilot runs policy trajectories on follower arm hardware.
package pilot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/lerobot-pi0/pkg/policy"
)

// Group is one batch-writable set of actuators. robot.Arm satisfies it.
type Group interface {
	Name() string
	WritePositions(ctx context.Context, values []float64) error
}

// WriteResult records one group's outcome for a single step. Write
// failures are values, not panics; the executor aggregates them.
type WriteResult struct {
	Group string
	Err   error
}

// OK reports whether the write succeeded.
func (w WriteResult) OK() bool {
	return w.Err == nil
}

// Status is the terminal state of a trajectory execution.
type Status int

const (
	// Completed means every step was written successfully (or the
	// trajectory was empty).
	Completed Status = iota
	// StepFailed means a step could not be mapped or written and the
	// remaining steps were skipped.
	StepFailed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case StepFailed:
		return "step_failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result reports how a trajectory ended. Both outcomes are ordinary
// return values; the executor never escalates them to a process fault.
type Result struct {
	Status     Status
	Steps      int           // steps fully executed
	FailedStep int           // index of the failing step, -1 when completed
	Writes     []WriteResult // per-group outcomes of the failing step
	Err        error         // mapping or write failure detail
}

// StepUpdate describes one executed step, published to observers.
type StepUpdate struct {
	Step      int
	Total     int
	Command   []float64 // hardware units, actuator order
	Timestamp time.Time
}

// ExecutorConfig configures a trajectory executor.
type ExecutorConfig struct {
	Groups []Group
	Mapper *policy.Mapper
	Hz     float64
	Logger zerolog.Logger
	// OnStep, when set, is called after each successfully written step.
	OnStep func(StepUpdate)
}

// Executor iterates a trajectory at a fixed frequency, writing each
// mapped step to every configured actuator group.
type Executor struct {
	groups []Group
	mapper *policy.Mapper
	period time.Duration
	log    zerolog.Logger
	onStep func(StepUpdate)

	// overridable for deterministic timing tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewExecutor validates the configuration. A non-positive frequency or
// a missing mapper/group is a configuration error caught here, before
// any trajectory runs.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Hz <= 0 {
		return nil, fmt.Errorf("trajectory frequency must be positive, got %g", cfg.Hz)
	}
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("no action mapper configured")
	}
	if len(cfg.Groups) == 0 {
		return nil, fmt.Errorf("no actuator groups configured")
	}
	return &Executor{
		groups: cfg.Groups,
		mapper: cfg.Mapper,
		period: time.Duration(float64(time.Second) / cfg.Hz),
		log:    cfg.Logger,
		onStep: cfg.OnStep,
		now:    time.Now,
		sleep:  time.Sleep,
	}, nil
}

// Execute runs the trajectory to a terminal state. Steps run in order;
// each one is mapped, written to every group, and then paced so the
// loop tracks the target frequency. A late step never accelerates the
// following ones. On the first mapping or write failure the remaining
// steps are skipped and StepFailed is reported with the failing index;
// the caller must request a fresh trajectory to continue.
//
// Execute does not watch ctx for cancellation: interrupts are handled
// between trajectories, a running one always finishes or fails.
func (e *Executor) Execute(ctx context.Context, resp policy.ActionResponse) Result {
	if resp.Empty() {
		e.log.Info().Msg("empty trajectory, nothing to execute")
		return Result{Status: Completed, FailedStep: -1}
	}

	total := len(resp.Actions)
	e.log.Info().
		Int("steps", total).
		Float64("hz", float64(time.Second)/float64(e.period)).
		Msg("executing trajectory")

	for i, step := range resp.Actions {
		start := e.now()

		cmd, mapErr := e.mapper.Map(step)
		var writes []WriteResult
		stepErr := mapErr
		if mapErr == nil {
			for _, g := range e.groups {
				werr := g.WritePositions(ctx, cmd)
				writes = append(writes, WriteResult{Group: g.Name(), Err: werr})
				if werr != nil && stepErr == nil {
					stepErr = fmt.Errorf("group %s: %w", g.Name(), werr)
				}
			}
		}

		// Pace before acting on failure, mirroring the step budget
		// even for the final step. No catch-up: the sleep depends only
		// on this step's own elapsed time.
		elapsed := e.now().Sub(start)
		if d := e.period - elapsed; d > 0 {
			e.sleep(d)
		}

		if stepErr != nil {
			e.log.Error().
				Err(stepErr).
				Int("step", i).
				Int("steps_total", total).
				Msg("aborting trajectory")
			return Result{
				Status:     StepFailed,
				Steps:      i,
				FailedStep: i,
				Writes:     writes,
				Err:        stepErr,
			}
		}

		e.log.Debug().
			Int("step", i).
			Dur("elapsed", elapsed).
			Msg("step written")

		if e.onStep != nil {
			e.onStep(StepUpdate{
				Step:      i,
				Total:     total,
				Command:   cmd,
				Timestamp: e.now(),
			})
		}
	}

	e.log.Info().Int("steps", total).Msg("trajectory completed")
	return Result{Status: Completed, Steps: total, FailedStep: -1}
}
