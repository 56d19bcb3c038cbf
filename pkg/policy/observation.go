package policy

import (
	"fmt"

	"github.com/gwillem/lerobot-pi0/pkg/camera"
)

// Wire field names understood by the policy server.
const (
	fieldJointPosition   = "observation/joint_position"
	fieldGripperPosition = "observation/gripper_position"
	fieldJointVelocity   = "observation/joint_velocity"
	fieldGripperVelocity = "observation/gripper_velocity"
	fieldPrompt          = "prompt"
	imageFieldPrefix     = "observation/"
)

// Observation is one fully assembled policy input. It is built once per
// control cycle and consumed by a single Infer call.
type Observation struct {
	JointPosition   []float64
	GripperPosition []float64
	JointVelocity   []float64
	GripperVelocity []float64
	Images          map[string]camera.Frame // keyed by camera role
	Prompt          string
}

// payload flattens the observation into the named-field mapping the
// server expects.
func (o Observation) payload() map[string]any {
	p := map[string]any{
		fieldJointPosition:   o.JointPosition,
		fieldGripperPosition: o.GripperPosition,
		fieldJointVelocity:   o.JointVelocity,
		fieldGripperVelocity: o.GripperVelocity,
		fieldPrompt:          o.Prompt,
	}
	for role, f := range o.Images {
		p[imageFieldPrefix+role] = map[string]any{
			"width":    f.Shape.Width,
			"height":   f.Shape.Height,
			"channels": f.Shape.Channels,
			"data":     f.Pix,
		}
	}
	return p
}

// DisplayFunc shows assembled camera frames to the operator. The return
// value signals whether the operator wants to continue; it is advisory
// and never changes what gets assembled.
type DisplayFunc func(frames map[string]camera.Frame) bool

// Assembler builds observations from raw state and captured frames.
type Assembler struct {
	ranges  Ranges
	roles   []string
	shape   camera.Shape
	display DisplayFunc
}

// NewAssembler validates the configuration and returns an assembler for
// the given camera roles. display may be nil.
func NewAssembler(ranges Ranges, roles []string, shape camera.Shape, display DisplayFunc) (*Assembler, error) {
	if err := ranges.Validate(); err != nil {
		return nil, fmt.Errorf("normalization ranges: %w", err)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{
		ranges:  ranges,
		roles:   roles,
		shape:   shape,
		display: display,
	}, nil
}

// Assemble normalizes the raw state and combines it with one frame per
// configured role and the task prompt. Missing or mis-shaped frames are
// replaced by zero frames of the default shape; a missing camera is
// never an error. Velocity fields are zero-filled placeholders, no
// velocity estimation is performed.
func (a *Assembler) Assemble(raw State, frames map[string]camera.Frame, prompt string) (Observation, error) {
	norm, err := a.ranges.Normalize(raw)
	if err != nil {
		return Observation{}, err
	}

	images := a.fitFrames(frames)
	if a.display != nil {
		a.display(images)
	}

	return Observation{
		JointPosition:   norm.Joints,
		GripperPosition: []float64{norm.Gripper},
		JointVelocity:   make([]float64, len(norm.Joints)),
		GripperVelocity: make([]float64, 1),
		Images:          images,
		Prompt:          prompt,
	}, nil
}

// Show runs the display callback on the given frames without building
// an observation, substituting zero frames as Assemble would. Returns
// true when no callback is configured.
func (a *Assembler) Show(frames map[string]camera.Frame) bool {
	images := a.fitFrames(frames)
	if a.display == nil {
		return true
	}
	return a.display(images)
}

func (a *Assembler) fitFrames(frames map[string]camera.Frame) map[string]camera.Frame {
	images := make(map[string]camera.Frame, len(a.roles))
	for _, role := range a.roles {
		f, ok := frames[role]
		if !ok || !f.Valid() {
			images[role] = camera.Zero(a.shape)
			continue
		}
		images[role] = camera.Resize(f, a.shape)
	}
	return images
}
