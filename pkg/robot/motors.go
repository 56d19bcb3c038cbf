// Package robot provides abstractions for controlling follower robot arms.
package robot

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-100/SO-101 arm.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// NumJoints is the number of arm joints, excluding the gripper.
const NumJoints = 5

// AllMotors returns all motor names in actuator order (matching servo
// IDs 1-6, gripper last). Position vectors throughout this module
// follow this ordering.
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}
