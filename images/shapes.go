// Package images provides the pixel and box primitives shared by the dataset
// pipeline: axis-aligned boxes, coordinate-space conversions, letterbox resize
// and image loading on top of gocv.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned box in pixel space.
type Box struct {
	// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner.
	X1, Y1, X2, Y2 float32
}

// XYWH is a box in center format. Values are normalized to [0, 1] when stored
// in label files and in the final label table.
type XYWH struct {
	CX, CY, W, H float32
}

// Width returns X2-X1.
func (b Box) Width() float32 { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the signed area of the box. Degenerate boxes have an area <= 0.
func (b Box) Area() float32 { return b.Width() * b.Height() }

// Offset translates the box by (dx, dy).
func (b Box) Offset(dx, dy float32) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Scale multiplies every coordinate by s.
func (b Box) Scale(s float32) Box {
	return Box{X1: b.X1 * s, Y1: b.Y1 * s, X2: b.X2 * s, Y2: b.Y2 * s}
}

// Clip clamps the box to [0, width] x [0, height].
func (b Box) Clip(width, height float32) Box {
	return Box{
		X1: Clamp(b.X1, 0, width),
		Y1: Clamp(b.Y1, 0, height),
		X2: Clamp(b.X2, 0, width),
		Y2: Clamp(b.Y2, 0, height),
	}
}

func (b Box) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", b.X1, b.Y1, b.X2, b.Y2)
}

// XYWHToXYXY converts a normalized center-format box into pixel corners for an
// image of the given size, then shifts it by (padX, padY).
//
// Arguments:
// - b: The normalized center-format box.
// - width: Width in pixels that the normalized coordinates refer to.
// - height: Height in pixels that the normalized coordinates refer to.
// - padX: Horizontal offset added after scaling.
// - padY: Vertical offset added after scaling.
//
// Returns:
// - The pixel-space box.
//
// @example
// box := XYWHToXYXY(XYWH{CX: 0.5, CY: 0.5, W: 0.2, H: 0.2}, 640, 480, 0, 80)
func XYWHToXYXY(b XYWH, width, height, padX, padY float32) Box {
	return Box{
		X1: width*(b.CX-b.W/2) + padX,
		Y1: height*(b.CY-b.H/2) + padY,
		X2: width*(b.CX+b.W/2) + padX,
		Y2: height*(b.CY+b.H/2) + padY,
	}
}

// XYXYToXYWH converts a pixel-space box into center format normalized by the
// image width and height.
//
// Arguments:
// - b: The pixel-space box.
// - width: Image width used for normalization.
// - height: Image height used for normalization.
//
// Returns:
// - The normalized center-format box.
func XYXYToXYWH(b Box, width, height float32) XYWH {
	return XYWH{
		CX: (b.X1 + b.X2) / 2 / width,
		CY: (b.Y1 + b.Y2) / 2 / height,
		W:  (b.X2 - b.X1) / width,
		H:  (b.Y2 - b.Y1) / height,
	}
}

// IoA returns the intersection of region r with box b, divided by the area of
// b. A box fully covered by r yields 1; a disjoint box yields 0.
//
// Arguments:
// - r: The region, e.g. a cutout mask.
// - b: The box whose own area normalizes the overlap.
//
// Returns:
// - The intersection-over-area ratio.
//
// @example
// ioa := IoA(Box{0, 0, 50, 100}, Box{0, 0, 100, 100}) // 0.5
func IoA(r, b Box) float32 {
	interW := math32.Max(math32.Min(r.X2, b.X2)-math32.Max(r.X1, b.X1), 0)
	interH := math32.Max(math32.Min(r.Y2, b.Y2)-math32.Max(r.Y1, b.Y1), 0)
	return interW * interH / (b.Area() + 1e-16)
}

// CalculateIoU returns the intersection over union of two boxes, a value
// between 0 (disjoint) and 1 (identical).
//
// The intersection corner is the max of the top-left corners and the min of the
// bottom-right corners; if either side is non-positive the boxes do not overlap.
// The union follows inclusion-exclusion: area(a) + area(b) - intersection.
//
// @example
// iou := CalculateIoU(Box{0, 0, 10, 10}, Box{5, 5, 15, 15}) // 25 / 175
func CalculateIoU(r, o Box) float32 {
	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH
	unionArea := r.Area() + o.Area() - interArea
	return interArea / unionArea
}
