package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newTestMat(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 200, 30, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestLetterbox_Shapes(t *testing.T) {
	tests := []struct {
		name           string
		rows, cols     int
		opts           LetterboxOptions
		expectedRows   int
		expectedCols   int
		expectedRatio  float64
		expectedPadX   float64
		expectedPadY   float64
		expectedRatioY float64
	}{
		{
			name:          "wide image padded to square",
			rows:          480,
			cols:          640,
			opts:          LetterboxOptions{Shape: image.Pt(640, 640), Color: PadColor, ScaleUp: true},
			expectedRows:  640,
			expectedCols:  640,
			expectedRatio: 1,
			expectedPadX:  0,
			expectedPadY:  80,
		},
		{
			name:          "auto pads to stride multiple",
			rows:          480,
			cols:          640,
			opts:          DefaultLetterboxOptions(640),
			expectedRows:  480,
			expectedCols:  640,
			expectedRatio: 1,
			expectedPadX:  0,
			expectedPadY:  0,
		},
		{
			name:          "auto with non-aligned height",
			rows:          300,
			cols:          400,
			opts:          LetterboxOptions{Shape: image.Pt(320, 320), Color: PadColor, Auto: true, ScaleUp: true, Stride: 32},
			expectedRows:  256, // 240 scaled, padded to next multiple of 32
			expectedCols:  320,
			expectedRatio: 0.8,
			expectedPadX:  0,
			expectedPadY:  8,
		},
		{
			name:          "no upscaling keeps small image",
			rows:          100,
			cols:          200,
			opts:          LetterboxOptions{Shape: image.Pt(640, 640), Color: PadColor, ScaleUp: false},
			expectedRows:  640,
			expectedCols:  640,
			expectedRatio: 1,
			expectedPadX:  220,
			expectedPadY:  270,
		},
		{
			name:          "upscaling",
			rows:          100,
			cols:          200,
			opts:          LetterboxOptions{Shape: image.Pt(640, 640), Color: PadColor, ScaleUp: true},
			expectedRows:  640,
			expectedCols:  640,
			expectedRatio: 3.2,
			expectedPadX:  0,
			expectedPadY:  160,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestMat(tt.rows, tt.cols)
			defer src.Close()

			res, err := Letterbox(src, tt.opts)
			require.NoError(t, err)
			defer res.Image.Close()

			assert.Equal(t, tt.expectedRows, res.Image.Rows())
			assert.Equal(t, tt.expectedCols, res.Image.Cols())
			assert.InDelta(t, tt.expectedRatio, res.RatioX, 1e-9)
			assert.InDelta(t, tt.expectedRatio, res.RatioY, 1e-9)
			assert.InDelta(t, tt.expectedPadX, res.PadX, 1e-9)
			assert.InDelta(t, tt.expectedPadY, res.PadY, 1e-9)

			// The source is left untouched.
			assert.Equal(t, tt.rows, src.Rows())
			assert.Equal(t, tt.cols, src.Cols())
		})
	}
}

func TestLetterbox_ScaleFill(t *testing.T) {
	src := newTestMat(100, 200)
	defer src.Close()

	res, err := Letterbox(src, LetterboxOptions{Shape: image.Pt(320, 320), ScaleFill: true, ScaleUp: true})
	require.NoError(t, err)
	defer res.Image.Close()

	assert.Equal(t, 320, res.Image.Rows())
	assert.Equal(t, 320, res.Image.Cols())
	assert.InDelta(t, 1.6, res.RatioX, 1e-9)
	assert.InDelta(t, 3.2, res.RatioY, 1e-9)
	assert.Zero(t, res.PadX)
	assert.Zero(t, res.PadY)
}

func TestLetterbox_PadColor(t *testing.T) {
	src := newTestMat(100, 200)
	defer src.Close()

	res, err := Letterbox(src, LetterboxOptions{Shape: image.Pt(200, 200), Color: PadColor, ScaleUp: true})
	require.NoError(t, err)
	defer res.Image.Close()

	// Top-left corner lies in the padded band, the center in the image.
	corner := res.Image.GetVecbAt(0, 0)
	assert.Equal(t, []uint8{114, 114, 114}, []uint8{corner[0], corner[1], corner[2]})

	center := res.Image.GetVecbAt(100, 100)
	assert.Equal(t, []uint8{10, 200, 30}, []uint8{center[0], center[1], center[2]})
}

func TestLetterbox_RoundTrip(t *testing.T) {
	shapes := []struct{ rows, cols, target int }{
		{480, 640, 640},
		{640, 480, 320},
		{123, 457, 416},
		{1080, 1920, 640},
		{50, 60, 640},
	}
	boxes := []Box{
		{0, 0, 10, 10},
		{12.5, 30.25, 40, 47.5},
		{1, 2, 50, 40},
	}

	for _, s := range shapes {
		src := newTestMat(s.rows, s.cols)
		for _, opts := range []LetterboxOptions{
			DefaultLetterboxOptions(s.target),
			{Shape: image.Pt(s.target, s.target), Color: PadColor},
			{Shape: image.Pt(s.target, s.target), ScaleFill: true, ScaleUp: true},
		} {
			res, err := Letterbox(src, opts)
			require.NoError(t, err)

			for _, b := range boxes {
				back := res.Unletterbox(res.ToFrame(b))
				assert.InDelta(t, b.X1, back.X1, 1e-2)
				assert.InDelta(t, b.Y1, back.Y1, 1e-2)
				assert.InDelta(t, b.X2, back.X2, 1e-2)
				assert.InDelta(t, b.Y2, back.Y2, 1e-2)
			}
			res.Image.Close()
		}
		src.Close()
	}
}

func TestLetterbox_Errors(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := Letterbox(empty, DefaultLetterboxOptions(640))
	assert.Error(t, err, "Letterbox should error for an empty image")

	src := newTestMat(10, 10)
	defer src.Close()

	_, err = Letterbox(src, LetterboxOptions{Shape: image.Pt(0, 0)})
	assert.Error(t, err, "Letterbox should error for zero dimensions")
}

func TestLetterbox_ThinImageKeepsOnePixel(t *testing.T) {
	src := newTestMat(5, 1100)
	defer src.Close()

	res, err := Letterbox(src, LetterboxOptions{Shape: image.Pt(64, 64), ScaleUp: true})
	require.NoError(t, err)
	defer res.Image.Close()

	assert.Equal(t, 64, res.Image.Rows())
	assert.Equal(t, 64, res.Image.Cols())
	assert.Equal(t, uint8(200), res.Image.GetVecbAt(31, 32)[1], "the single resized row sits below 31 rows of padding")
}
