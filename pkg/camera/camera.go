// Package camera provides fixed-shape image buffers for policy observations.
package camera

import (
	"context"
	"fmt"
)

// Shape describes the dimensions of a frame buffer.
type Shape struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// DefaultShape is the frame size expected by pi0-style policies.
var DefaultShape = Shape{Width: 224, Height: 224, Channels: 3}

// Size returns the number of bytes in a frame of this shape.
func (s Shape) Size() int {
	return s.Width * s.Height * s.Channels
}

// Validate reports whether the shape has positive dimensions.
func (s Shape) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.Channels <= 0 {
		return fmt.Errorf("invalid frame shape %dx%dx%d", s.Width, s.Height, s.Channels)
	}
	return nil
}

// Frame is an 8-bit image buffer in row-major HWC order.
type Frame struct {
	Shape Shape
	Pix   []uint8
}

// Zero returns an all-zero frame of the given shape.
func Zero(s Shape) Frame {
	return Frame{Shape: s, Pix: make([]uint8, s.Size())}
}

// Valid reports whether the pixel buffer matches the declared shape.
func (f Frame) Valid() bool {
	return f.Shape.Validate() == nil && len(f.Pix) == f.Shape.Size()
}

// Resize scales a frame to the target shape using nearest-neighbor
// sampling. Channel counts must match; an invalid source yields a zero
// frame.
func Resize(f Frame, target Shape) Frame {
	if !f.Valid() || f.Shape.Channels != target.Channels {
		return Zero(target)
	}
	if f.Shape == target {
		return f
	}
	out := Zero(target)
	ch := target.Channels
	for y := 0; y < target.Height; y++ {
		sy := y * f.Shape.Height / target.Height
		for x := 0; x < target.Width; x++ {
			sx := x * f.Shape.Width / target.Width
			src := (sy*f.Shape.Width + sx) * ch
			dst := (y*target.Width + x) * ch
			copy(out.Pix[dst:dst+ch], f.Pix[src:src+ch])
		}
	}
	return out
}

// Source captures frames from one or more cameras, keyed by camera name.
// Acquisition backends live outside this module; the control loop only
// depends on this interface.
type Source interface {
	Frames(ctx context.Context) (map[string]Frame, error)
	Close() error
}

// StaticSource serves a fixed set of frames. Used for tests and for the
// preview mode when no capture backend is wired up.
type StaticSource struct {
	ByName map[string]Frame
}

// Frames returns the configured frames.
func (s *StaticSource) Frames(_ context.Context) (map[string]Frame, error) {
	out := make(map[string]Frame, len(s.ByName))
	for name, f := range s.ByName {
		out[name] = f
	}
	return out, nil
}

// Close is a no-op for a static source.
func (s *StaticSource) Close() error { return nil }
