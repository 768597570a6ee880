// Package test provides deterministic fixtures shared by the package tests:
// synthetic frames and on-disk datasets of images and label files.
package test

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// MockFrameGenerator creates deterministic BGR test frames.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.GenerateStaticFrame()
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// GenerateStaticFrame creates a uniform frame of the given BGR color.
func (g *MockFrameGenerator) GenerateStaticFrame(c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		g.height, g.width, gocv.MatTypeCV8UC3)
}

// GenerateObjectFrame creates a mid-gray frame with a filled white square of
// the given size whose top-left corner is at (x, y).
//
// Arguments:
// - x: X coordinate of the square.
// - y: Y coordinate of the square.
// - size: Side of the square in pixels.
//
// Returns:
// - A BGR Mat, owned by the caller.
//
// @example
// frame := gen.GenerateObjectFrame(100, 100, 50)
// defer frame.Close()
func (g *MockFrameGenerator) GenerateObjectFrame(x, y, size int) gocv.Mat {
	frame := g.GenerateStaticFrame(color.RGBA{R: 128, G: 128, B: 128})

	rect := image.Rect(x, y, x+size, y+size)
	gocv.Rectangle(&frame, rect, color.RGBA{255, 255, 255, 0}, -1)

	return frame
}
