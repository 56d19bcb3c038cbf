package pilot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/lerobot-pi0/pkg/policy"
)

// manualClock gives tests deterministic control over the executor's
// notion of time.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeGroup struct {
	name   string
	writes [][]float64
	failAt int // write index at which to fail, -1 for never
	clk    *manualClock
	cost   time.Duration   // simulated bus time per write
	costs  []time.Duration // per-write override, takes precedence over cost
}

func newFakeGroup(name string) *fakeGroup {
	return &fakeGroup{name: name, failAt: -1}
}

func (g *fakeGroup) Name() string { return g.name }

func (g *fakeGroup) WritePositions(_ context.Context, values []float64) error {
	cmd := make([]float64, len(values))
	copy(cmd, values)
	g.writes = append(g.writes, cmd)
	if g.clk != nil {
		cost := g.cost
		if i := len(g.writes) - 1; i < len(g.costs) {
			cost = g.costs[i]
		}
		g.clk.Advance(cost)
	}
	if g.failAt >= 0 && len(g.writes)-1 == g.failAt {
		return context.DeadlineExceeded
	}
	return nil
}

func testMapper(t *testing.T) *policy.Mapper {
	t.Helper()
	ranges := policy.Ranges{
		Joints:  []policy.Range{{Min: -100, Max: 100}},
		Gripper: policy.Range{Min: 0, Max: 50},
	}
	m, err := policy.NewMapper(ranges, 2, policy.GripperAuto)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return m
}

// newTestExecutor builds an executor with a manual clock. Sleeps are
// recorded and advance the clock as a real sleep would.
func newTestExecutor(t *testing.T, groups []Group, hz float64, clk *manualClock) (*Executor, *[]time.Duration) {
	t.Helper()
	e, err := NewExecutor(ExecutorConfig{
		Groups: groups,
		Mapper: testMapper(t),
		Hz:     hz,
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	sleeps := &[]time.Duration{}
	e.now = clk.Now
	e.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
		clk.Advance(d)
	}
	return e, sleeps
}

func steps(n int) policy.ActionResponse {
	resp := policy.ActionResponse{}
	for i := 0; i < n; i++ {
		resp.Actions = append(resp.Actions, []float64{0.5, -0.5, 0})
	}
	return resp
}

func TestNewExecutor_Validation(t *testing.T) {
	mapper := testMapper(t)
	group := newFakeGroup("main")

	for _, hz := range []float64{0, -20} {
		if _, err := NewExecutor(ExecutorConfig{Groups: []Group{group}, Mapper: mapper, Hz: hz}); err == nil {
			t.Errorf("frequency %g accepted", hz)
		}
	}
	if _, err := NewExecutor(ExecutorConfig{Groups: []Group{group}, Hz: 20}); err == nil {
		t.Error("missing mapper accepted")
	}
	if _, err := NewExecutor(ExecutorConfig{Mapper: mapper, Hz: 20}); err == nil {
		t.Error("missing groups accepted")
	}
}

func TestExecutor_EmptyTrajectory(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	e, sleeps := newTestExecutor(t, []Group{group}, 20, clk)

	res := e.Execute(context.Background(), policy.ActionResponse{})

	if res.Status != Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if res.FailedStep != -1 {
		t.Errorf("failed step = %d, want -1", res.FailedStep)
	}
	if len(group.writes) != 0 {
		t.Errorf("%d writes performed on empty trajectory", len(group.writes))
	}
	if len(*sleeps) != 0 {
		t.Errorf("%d sleeps performed on empty trajectory", len(*sleeps))
	}
}

func TestExecutor_CompletesAndDenormalizes(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	e, _ := newTestExecutor(t, []Group{group}, 20, clk)

	res := e.Execute(context.Background(), steps(3))

	if res.Status != Completed {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if res.Steps != 3 {
		t.Errorf("steps = %d, want 3", res.Steps)
	}
	if len(group.writes) != 3 {
		t.Fatalf("%d writes, want 3", len(group.writes))
	}
	// [0.5, -0.5, 0] through joint range [-100,100] and gripper [0,50].
	want := []float64{50, -50, 25}
	for i, w := range want {
		if math.Abs(group.writes[0][i]-w) > 1e-9 {
			t.Errorf("command[%d] = %g, want %g", i, group.writes[0][i], w)
		}
	}
}

func TestExecutor_Pacing(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	group.clk = clk
	group.cost = 5 * time.Millisecond
	e, sleeps := newTestExecutor(t, []Group{group}, 50, clk) // 20ms period

	start := clk.Now()
	res := e.Execute(context.Background(), steps(4))
	total := clk.Now().Sub(start)

	if res.Status != Completed {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	for i, d := range *sleeps {
		if d != 15*time.Millisecond {
			t.Errorf("sleep %d = %v, want 15ms", i, d)
		}
	}
	// 4 steps at 50 Hz: total wall clock within one period of 80ms.
	if total != 80*time.Millisecond {
		t.Errorf("total execution time = %v, want 80ms", total)
	}
}

func TestExecutor_NoCatchUp(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	group.clk = clk
	e, sleeps := newTestExecutor(t, []Group{group}, 50, clk) // 20ms period

	// Step 0 overruns its budget; steps 1 and 2 are on time.
	group.costs = []time.Duration{50 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}

	res := e.Execute(context.Background(), steps(3))
	if res.Status != Completed {
		t.Fatalf("status = %v, want completed", res.Status)
	}

	// The overrunning step sleeps not at all; the following steps get
	// their full 15ms, never less to compensate.
	want := []time.Duration{15 * time.Millisecond, 15 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("got %d sleeps (%v), want %d", len(*sleeps), *sleeps, len(want))
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], d)
		}
	}
}

func TestExecutor_FailureShortCircuit(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	group.failAt = 2
	e, _ := newTestExecutor(t, []Group{group}, 100, clk)

	res := e.Execute(context.Background(), steps(6))

	if res.Status != StepFailed {
		t.Fatalf("status = %v, want step_failed", res.Status)
	}
	if res.FailedStep != 2 {
		t.Errorf("failed step = %d, want 2", res.FailedStep)
	}
	if res.Steps != 2 {
		t.Errorf("completed steps = %d, want 2", res.Steps)
	}
	// Steps 3..5 were never attempted.
	if len(group.writes) != 3 {
		t.Errorf("%d writes, want 3", len(group.writes))
	}
	if res.Err == nil {
		t.Error("no error recorded for the failing step")
	}
}

func TestExecutor_WriteResultsPerGroup(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	good := newFakeGroup("left")
	bad := newFakeGroup("right")
	bad.failAt = 0
	e, _ := newTestExecutor(t, []Group{good, bad}, 100, clk)

	res := e.Execute(context.Background(), steps(2))

	if res.Status != StepFailed {
		t.Fatalf("status = %v, want step_failed", res.Status)
	}
	if res.FailedStep != 0 {
		t.Errorf("failed step = %d, want 0", res.FailedStep)
	}
	if len(res.Writes) != 2 {
		t.Fatalf("%d write results, want 2", len(res.Writes))
	}
	if !res.Writes[0].OK() || res.Writes[0].Group != "left" {
		t.Errorf("unexpected first write result: %+v", res.Writes[0])
	}
	if res.Writes[1].OK() || res.Writes[1].Group != "right" {
		t.Errorf("unexpected second write result: %+v", res.Writes[1])
	}
	// Both groups were written once before the abort.
	if len(good.writes) != 1 || len(bad.writes) != 1 {
		t.Errorf("writes = %d/%d, want 1/1", len(good.writes), len(bad.writes))
	}
}

func TestExecutor_MappingErrorFailsStep(t *testing.T) {
	clk := &manualClock{now: time.Unix(0, 0)}
	group := newFakeGroup("main")
	e, _ := newTestExecutor(t, []Group{group}, 100, clk)

	resp := policy.ActionResponse{Actions: [][]float64{
		{0.5, -0.5, 0},
		{0.5}, // too short to map
		{0.5, -0.5, 0},
	}}
	res := e.Execute(context.Background(), resp)

	if res.Status != StepFailed {
		t.Fatalf("status = %v, want step_failed", res.Status)
	}
	if res.FailedStep != 1 {
		t.Errorf("failed step = %d, want 1", res.FailedStep)
	}
	// No write was attempted for the unmappable step.
	if len(group.writes) != 1 {
		t.Errorf("%d writes, want 1", len(group.writes))
	}
	if len(res.Writes) != 0 {
		t.Errorf("%d write results for a mapping failure, want 0", len(res.Writes))
	}
}

func TestExecutor_PublishesStepUpdates(t *testing.T) {
	var updates []StepUpdate
	e, err := NewExecutor(ExecutorConfig{
		Groups: []Group{newFakeGroup("main")},
		Mapper: testMapper(t),
		Hz:     1000,
		Logger: zerolog.Nop(),
		OnStep: func(u StepUpdate) { updates = append(updates, u) },
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	res := e.Execute(context.Background(), steps(3))
	if res.Status != Completed {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if len(updates) != 3 {
		t.Fatalf("%d updates, want 3", len(updates))
	}
	for i, u := range updates {
		if u.Step != i || u.Total != 3 {
			t.Errorf("update %d = step %d/%d", i, u.Step, u.Total)
		}
		if len(u.Command) != 3 {
			t.Errorf("update %d command has %d values, want 3", i, len(u.Command))
		}
	}
}
