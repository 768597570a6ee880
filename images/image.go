package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrImageNotFound is returned when an image file cannot be read or decoded.
var ErrImageNotFound = errors.New("image not found")

// Shape is an image height and width in pixels.
type Shape struct {
	H int `json:"h" yaml:"h"`
	W int `json:"w" yaml:"w"`
}

// LoadImage reads a BGR image and resizes it so that its longest side equals
// imgSize, preserving the aspect ratio.
//
// Arguments:
// - path: The image file to read.
// - imgSize: The target length of the longest side.
// - augment: Whether the image feeds augmentation; non-augmented downscales use
// area interpolation.
//
// Returns:
// - The resized image, owned by the caller.
// - The original shape (h0, w0).
// - The resized shape (h, w).
// - error wrapping ErrImageNotFound if the file cannot be decoded.
//
// @example
// img, orig, resized, err := LoadImage("images/0001.jpg", 640, true)
//
//	if err != nil {
//	    return err
//	}
//
// defer img.Close()
func LoadImage(path string, imgSize int, augment bool) (gocv.Mat, Shape, Shape, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), Shape{}, Shape{}, errors.Wrap(ErrImageNotFound, path)
	}

	h0, w0 := img.Rows(), img.Cols()
	orig := Shape{H: h0, W: w0}

	r := float64(imgSize) / float64(max(h0, w0))
	if r == 1 {
		return img, orig, orig, nil
	}

	interp := gocv.InterpolationLinear
	if r < 1 && !augment {
		interp = gocv.InterpolationArea
	}

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(max(1, int(float64(w0)*r)), max(1, int(float64(h0)*r))), 0, 0, interp)
	img.Close()

	return resized, orig, Shape{H: resized.Rows(), W: resized.Cols()}, nil
}

// MatToCHW converts a BGR Mat into a planar RGB byte slice (channel, height,
// width), the layout expected by detection models.
//
// Arguments:
// - img: A 3-channel 8-bit BGR image.
//
// Returns:
// - The CHW pixel buffer of length 3*rows*cols.
// - error if the Mat is not 3-channel 8-bit.
func MatToCHW(img gocv.Mat) ([]uint8, error) {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Errorf("expected 8-bit 3-channel image, got type %v", img.Type())
	}

	src := img
	if !img.IsContinuous() {
		src = img.Clone()
		defer src.Close()
	}

	data, err := src.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "failed to access pixel data")
	}

	height, width := src.Rows(), src.Cols()
	plane := height * width
	out := make([]uint8, 3*plane)

	// BGR interleaved to RGB planar.
	Parallel(height, func(partStart, partEnd int) {
		for y := partStart; y < partEnd; y++ {
			row := y * width
			for x := 0; x < width; x++ {
				i := row + x
				out[i] = data[i*3+2]
				out[plane+i] = data[i*3+1]
				out[2*plane+i] = data[i*3]
			}
		}
	})

	return out, nil
}

// CHWToImage converts a planar RGB buffer back into an image.RGBA, e.g. for
// previews.
func CHWToImage(data []uint8, height, width int) *image.RGBA {
	plane := height * width
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < plane; i++ {
		img.Pix[i*4] = data[i]
		img.Pix[i*4+1] = data[plane+i]
		img.Pix[i*4+2] = data[2*plane+i]
		img.Pix[i*4+3] = 255
	}
	return img
}

// NewFilledMat returns a rows x cols BGR image filled with PadColor.
func NewFilledMat(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(PadColor.B), float64(PadColor.G), float64(PadColor.R), 0),
		rows, cols, gocv.MatTypeCV8UC3)
}
