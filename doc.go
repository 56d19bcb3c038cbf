// Package lerobotpi0 drives an SO-100/SO-101 robot arm from a remote
// pi0-style policy server.
//
// Each control cycle reads the arm's joint positions, assembles them
// together with camera frames into a normalized policy observation,
// requests an action trajectory from the inference server over a
// persistent websocket, and executes the trajectory on the follower
// arm at a fixed control frequency.
//
// # Installation
//
//	go install github.com/gwillem/lerobot-pi0/cmd/lerobot-pi0@latest
//
// # Usage
//
// First, run setup to detect and calibrate your follower arm:
//
//	lerobot-pi0 setup
//
// Then execute a single policy trajectory:
//
//	lerobot-pi0 run --prompt "Pick up the duck"
//
// Or run continuously with a live monitor:
//
//	lerobot-pi0 continuous
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lerobot-pi0: CLI with setup, run, continuous and preview commands
//   - pkg/robot: Arm control, calibration, and configuration
//   - pkg/camera: Fixed-shape frame buffers and capture sources
//   - pkg/policy: Normalization, observation assembly, inference client, action mapping
//   - pkg/pilot: Trajectory executor and control-cycle runner
package lerobotpi0
