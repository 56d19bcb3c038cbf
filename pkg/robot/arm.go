package robot

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Arm is a named follower arm: a serial bus plus a servo group. It
// exposes the actuator array as ordered position vectors in calibrated
// units, matching AllMotors ordering.
type Arm struct {
	name        string
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm opens the serial bus and initializes the servo group. The
// calibration is validated before any bus traffic happens.
func NewArm(name, port string, cal Calibration) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("arm %s: %w", name, err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		name:        name,
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Name returns the configured group name of this arm.
func (a *Arm) Name() string {
	return a.name
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// NumMotors returns the number of physical actuator channels.
func (a *Arm) NumMotors() int {
	return len(AllMotors())
}

// ReadPositions reads current positions from all motors using a sync
// read. Values are calibrated units ordered per AllMotors.
func (a *Arm) ReadPositions(ctx context.Context) ([]float64, error) {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	motors := AllMotors()
	positions := make([]float64, len(motors))
	for i, name := range motors {
		cal, ok := a.calibration[name]
		if !ok {
			return nil, fmt.Errorf("motor %s: no calibration data", name)
		}
		raw, ok := rawPositions[cal.ID]
		if !ok {
			return nil, fmt.Errorf("motor %s (id %d): no position reported", name, cal.ID)
		}
		positions[i] = cal.Normalize(raw)
	}

	return positions, nil
}

// WritePositions writes target positions to all motors using a sync
// write. Values are calibrated units ordered per AllMotors; the vector
// length must match the number of motors.
func (a *Arm) WritePositions(ctx context.Context, values []float64) error {
	motors := AllMotors()
	if len(values) != len(motors) {
		return fmt.Errorf("got %d position values, arm has %d motors", len(values), len(motors))
	}

	rawPositions := make(feetech.PositionMap, len(motors))
	for i, name := range motors {
		cal, ok := a.calibration[name]
		if !ok {
			return fmt.Errorf("motor %s: no calibration data", name)
		}
		rawPositions[cal.ID] = cal.Denormalize(values[i])
	}

	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	return nil
}
