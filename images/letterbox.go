package images

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// PadColor is the mid-gray used for letterbox borders, mosaic canvases and
// warp fill.
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// LetterboxOptions controls an aspect-preserving resize.
type LetterboxOptions struct {
	// Shape is the target size (X=width, Y=height).
	Shape image.Point `json:"shape" yaml:"shape"`
	// Color fills the padded border.
	Color color.RGBA `json:"color" yaml:"color"`
	// Auto pads only up to the smallest multiple of Stride instead of the full
	// target shape.
	Auto bool `json:"auto" yaml:"auto"`
	// ScaleFill stretches to the target shape without padding. Ignored when
	// Auto is set.
	ScaleFill bool `json:"scale_fill" yaml:"scale_fill"`
	// ScaleUp allows ratios above 1. Disable it to only ever shrink.
	ScaleUp bool `json:"scale_up" yaml:"scale_up"`
	// Stride is the multiple that Auto padding aligns to.
	Stride int `json:"stride" yaml:"stride"`
}

// DefaultLetterboxOptions returns the inference defaults for a square target.
//
// Arguments:
// - size: The target width and height.
//
// Returns:
// - Options with gray padding, Auto stride alignment and upscaling enabled.
func DefaultLetterboxOptions(size int) LetterboxOptions {
	return LetterboxOptions{
		Shape:   image.Pt(size, size),
		Color:   PadColor,
		Auto:    true,
		ScaleUp: true,
		Stride:  32,
	}
}

// LetterboxResult holds a letterboxed image and the parameters needed to map
// boxes into (and out of) its frame.
type LetterboxResult struct {
	// Image is owned by the caller and must be closed.
	Image gocv.Mat
	// RatioX and RatioY are the scale factors applied to the source.
	RatioX, RatioY float64
	// PadX and PadY are the left and top padding before integer rounding.
	PadX, PadY float64
}

// Letterbox resizes img with a single uniform ratio and pads it to the target
// shape. The source Mat is not modified and stays owned by the caller.
//
// Arguments:
// - img: The BGR source image.
// - opts: Target shape and padding behavior.
//
// Returns:
// - The letterboxed image plus the ratio and padding applied.
// - error if the input is empty or the target shape is invalid.
//
// @example
// res, err := Letterbox(frame, DefaultLetterboxOptions(640))
//
//	if err != nil {
//	    return err
//	}
//
// defer res.Image.Close()
func Letterbox(img gocv.Mat, opts LetterboxOptions) (LetterboxResult, error) {
	if img.Empty() {
		return LetterboxResult{}, errors.New("letterbox: empty image")
	}
	if opts.Shape.X <= 0 || opts.Shape.Y <= 0 {
		return LetterboxResult{}, errors.Errorf("letterbox: invalid shape %v", opts.Shape)
	}

	h, w := float64(img.Rows()), float64(img.Cols())
	newH, newW := float64(opts.Shape.Y), float64(opts.Shape.X)

	r := math.Min(newH/h, newW/w)
	if !opts.ScaleUp {
		r = math.Min(r, 1.0)
	}
	ratioX, ratioY := r, r

	unpadW := max(1, int(math.Round(w*r)))
	unpadH := max(1, int(math.Round(h*r)))
	dw := newW - float64(unpadW)
	dh := newH - float64(unpadH)

	switch {
	case opts.Auto:
		stride := opts.Stride
		if stride <= 0 {
			stride = 32
		}
		dw = math.Mod(dw, float64(stride))
		dh = math.Mod(dh, float64(stride))
	case opts.ScaleFill:
		dw, dh = 0, 0
		unpadW, unpadH = opts.Shape.X, opts.Shape.Y
		ratioX, ratioY = newW/w, newH/h
	}

	// Split the padding between both sides.
	dw /= 2
	dh /= 2

	src := img
	if img.Cols() != unpadW || img.Rows() != unpadH {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(unpadW, unpadH), 0, 0, gocv.InterpolationLinear)
		src = resized
	}

	top, bottom := int(math.Round(dh-0.1)), int(math.Round(dh+0.1))
	left, right := int(math.Round(dw-0.1)), int(math.Round(dw+0.1))

	out := gocv.NewMat()
	gocv.CopyMakeBorder(src, &out, top, bottom, left, right, gocv.BorderConstant, opts.Color)

	return LetterboxResult{
		Image:  out,
		RatioX: ratioX,
		RatioY: ratioY,
		PadX:   dw,
		PadY:   dh,
	}, nil
}

// ToFrame maps a box given in source pixel coordinates into the letterboxed
// frame.
func (r LetterboxResult) ToFrame(b Box) Box {
	return Box{
		X1: b.X1*float32(r.RatioX) + float32(r.PadX),
		Y1: b.Y1*float32(r.RatioY) + float32(r.PadY),
		X2: b.X2*float32(r.RatioX) + float32(r.PadX),
		Y2: b.Y2*float32(r.RatioY) + float32(r.PadY),
	}
}

// Unletterbox maps a box from the letterboxed frame back to source pixel
// coordinates by removing the padding and the scale.
//
// Arguments:
// - b: A box in letterboxed coordinates, e.g. a prediction.
//
// Returns:
// - The box in the coordinates of the image passed to Letterbox.
func (r LetterboxResult) Unletterbox(b Box) Box {
	return Box{
		X1: (b.X1 - float32(r.PadX)) / float32(r.RatioX),
		Y1: (b.Y1 - float32(r.PadY)) / float32(r.RatioY),
		X2: (b.X2 - float32(r.PadX)) / float32(r.RatioX),
		Y2: (b.Y2 - float32(r.PadY)) / float32(r.RatioY),
	}
}
