// Package policy converts robot state to and from the numeric
// representation expected by a remote pi0-style policy server.
package policy

import "fmt"

// State is one proprioceptive sample: arm joint positions plus the
// gripper position. Values are in calibrated hardware units on the way
// in and normalized [-1, 1] values on the way out of Ranges.Normalize.
type State struct {
	Joints  []float64
	Gripper float64
}

// Range is the configured [Min, Max] hardware-unit bound for one channel.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate reports whether the range can be used for normalization.
func (r Range) Validate() error {
	if r.Max <= r.Min {
		return fmt.Errorf("range max %.3f must be greater than min %.3f", r.Max, r.Min)
	}
	return nil
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Normalize maps v into [-1, 1], clamping out-of-range inputs to the
// violated bound first.
func (r Range) Normalize(v float64) float64 {
	return 2*(r.Clamp(v)-r.Min)/(r.Max-r.Min) - 1
}

// Denormalize maps a normalized value back to hardware units.
func (r Range) Denormalize(v float64) float64 {
	return 0.5*(v+1)*(r.Max-r.Min) + r.Min
}

// Ranges holds per-channel normalization bounds. Joints may hold one
// entry per arm joint or a single shared entry for all of them.
type Ranges struct {
	Joints  []Range `json:"joints"`
	Gripper Range   `json:"gripper"`
}

// Validate checks every channel. A degenerate range is a configuration
// error and must be caught at startup, not at call time.
func (r Ranges) Validate() error {
	if len(r.Joints) == 0 {
		return fmt.Errorf("no joint ranges configured")
	}
	for i, jr := range r.Joints {
		if err := jr.Validate(); err != nil {
			return fmt.Errorf("joint %d: %w", i, err)
		}
	}
	if err := r.Gripper.Validate(); err != nil {
		return fmt.Errorf("gripper: %w", err)
	}
	return nil
}

// Joint returns the range for joint i, falling back to the shared entry
// when only one is configured.
func (r Ranges) Joint(i int) Range {
	if len(r.Joints) == 1 {
		return r.Joints[0]
	}
	return r.Joints[i]
}

func (r Ranges) checkJointCount(n int) error {
	if len(r.Joints) != 1 && len(r.Joints) != n {
		return fmt.Errorf("state has %d joints, configured ranges cover %d", n, len(r.Joints))
	}
	return nil
}

// Normalize maps a raw state into [-1, 1] per channel.
func (r Ranges) Normalize(raw State) (State, error) {
	if err := r.checkJointCount(len(raw.Joints)); err != nil {
		return State{}, err
	}
	out := State{
		Joints:  make([]float64, len(raw.Joints)),
		Gripper: r.Gripper.Normalize(raw.Gripper),
	}
	for i, v := range raw.Joints {
		out.Joints[i] = r.Joint(i).Normalize(v)
	}
	return out, nil
}

// Denormalize maps a normalized state back to hardware units.
func (r Ranges) Denormalize(norm State) (State, error) {
	if err := r.checkJointCount(len(norm.Joints)); err != nil {
		return State{}, err
	}
	out := State{
		Joints:  make([]float64, len(norm.Joints)),
		Gripper: r.Gripper.Denormalize(norm.Gripper),
	}
	for i, v := range norm.Joints {
		out.Joints[i] = r.Joint(i).Denormalize(v)
	}
	return out, nil
}
