package policy

import "fmt"

// ActionResponse is the policy server's reply: an ordered trajectory of
// fixed-length normalized action steps.
type ActionResponse struct {
	Actions [][]float64
}

// Empty reports whether there is no trajectory to execute.
func (r ActionResponse) Empty() bool {
	return len(r.Actions) == 0
}

// GripperConvention selects which raw action channel carries the
// gripper command. Two policy output layouts have been observed in the
// wild: one emits the gripper right after the arm joints, the other
// inserts a padding channel in between.
type GripperConvention string

const (
	// GripperAuto uses index numJoints+1 when the step is long enough,
	// falling back to numJoints otherwise.
	GripperAuto GripperConvention = "auto"
	// GripperPadded always reads the gripper from index numJoints+1.
	GripperPadded GripperConvention = "padded"
	// GripperPacked always reads the gripper from index numJoints.
	GripperPacked GripperConvention = "packed"
)

// ParseGripperConvention maps a config string to a convention. An empty
// string means auto.
func ParseGripperConvention(s string) (GripperConvention, error) {
	switch GripperConvention(s) {
	case "":
		return GripperAuto, nil
	case GripperAuto, GripperPadded, GripperPacked:
		return GripperConvention(s), nil
	}
	return "", fmt.Errorf("unknown gripper convention %q (want auto, padded or packed)", s)
}

// Mapper converts raw policy action steps into denormalized actuator
// command vectors ordered to match the arm's motor enumeration.
type Mapper struct {
	ranges     Ranges
	numJoints  int
	convention GripperConvention
}

// NewMapper validates the configuration and returns a mapper for an arm
// with numJoints arm joints plus one gripper.
func NewMapper(ranges Ranges, numJoints int, convention GripperConvention) (*Mapper, error) {
	if numJoints <= 0 {
		return nil, fmt.Errorf("number of arm joints must be positive, got %d", numJoints)
	}
	if err := ranges.Validate(); err != nil {
		return nil, fmt.Errorf("normalization ranges: %w", err)
	}
	if err := ranges.checkJointCount(numJoints); err != nil {
		return nil, err
	}
	switch convention {
	case GripperAuto, GripperPadded, GripperPacked:
	default:
		return nil, fmt.Errorf("unknown gripper convention %q", convention)
	}
	return &Mapper{
		ranges:     ranges,
		numJoints:  numJoints,
		convention: convention,
	}, nil
}

// CommandLen returns the length of the command vectors Map produces.
func (m *Mapper) CommandLen() int {
	return m.numJoints + 1
}

// Map converts one raw action step into a hardware-unit command vector:
// the first numJoints values map 1:1 to the arm joints, the gripper
// value comes from the channel selected by the convention, and trailing
// channels are ignored. A step shorter than numJoints+1 is a fatal
// mapping error.
func (m *Mapper) Map(step []float64) ([]float64, error) {
	k := m.numJoints
	if len(step) < k+1 {
		return nil, fmt.Errorf("action step has %d values, need at least %d", len(step), k+1)
	}

	gripperIdx, err := m.gripperIndex(len(step))
	if err != nil {
		return nil, err
	}

	cmd := make([]float64, k+1)
	for i := 0; i < k; i++ {
		cmd[i] = m.ranges.Joint(i).Denormalize(step[i])
	}
	cmd[k] = m.ranges.Gripper.Denormalize(step[gripperIdx])
	return cmd, nil
}

func (m *Mapper) gripperIndex(stepLen int) (int, error) {
	k := m.numJoints
	switch m.convention {
	case GripperPadded:
		if stepLen < k+2 {
			return 0, fmt.Errorf("action step has %d values, padded layout needs at least %d", stepLen, k+2)
		}
		return k + 1, nil
	case GripperPacked:
		return k, nil
	default: // GripperAuto
		if stepLen >= k+2 {
			return k + 1, nil
		}
		return k, nil
	}
}
