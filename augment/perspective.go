// Package augment implements the geometric and photometric augmentations
// applied to training samples. Every function takes an explicit *rand.Rand so
// that a sample is reproducible from its seed and safe to compute in parallel
// with other samples.
package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Target is a labeled box in pixel coordinates.
type Target struct {
	Class float32
	Box   images.Box
}

// PerspectiveParams holds the sampling ranges for RandomPerspective.
type PerspectiveParams struct {
	// Degrees is the maximum absolute rotation angle.
	Degrees float64 `json:"degrees" yaml:"degrees"`
	// Translate is the maximum translation as a fraction of the output size.
	Translate float64 `json:"translate" yaml:"translate"`
	// Scale is the maximum deviation of the zoom factor from 1.
	Scale float64 `json:"scale" yaml:"scale"`
	// Shear is the maximum absolute shear angle in degrees, per axis.
	Shear float64 `json:"shear" yaml:"shear"`
	// Perspective is the maximum absolute projective skew.
	Perspective float64 `json:"perspective" yaml:"perspective"`
	// Border grows (or, when negative, crops) the output canvas on each side.
	// X applies to the width and Y to the height.
	Border image.Point `json:"border" yaml:"border"`
}

// Transform is one sampled draw of PerspectiveParams.
type Transform struct {
	// CenterX and CenterY move the source center to the origin.
	CenterX, CenterY float64
	// PerspectiveX and PerspectiveY are the projective terms.
	PerspectiveX, PerspectiveY float64
	// Angle is the rotation in degrees and Scale the uniform zoom.
	Angle, Scale float64
	// ShearX and ShearY are shear angles in degrees.
	ShearX, ShearY float64
	// TranslateX and TranslateY place the origin on the output canvas.
	TranslateX, TranslateY float64
}

// SampleTransform draws a Transform for a source of srcW x srcH pixels warped
// onto a dstW x dstH canvas.
func SampleTransform(rng *rand.Rand, p PerspectiveParams, srcW, srcH, dstW, dstH int) Transform {
	t := Transform{
		CenterX: -float64(srcW) / 2,
		CenterY: -float64(srcH) / 2,
	}
	t.PerspectiveX = uniform(rng, -p.Perspective, p.Perspective)
	t.PerspectiveY = uniform(rng, -p.Perspective, p.Perspective)
	t.Angle = uniform(rng, -p.Degrees, p.Degrees)
	t.Scale = uniform(rng, 1-p.Scale, 1+p.Scale)
	t.ShearX = uniform(rng, -p.Shear, p.Shear)
	t.ShearY = uniform(rng, -p.Shear, p.Shear)
	t.TranslateX = uniform(rng, 0.5-p.Translate, 0.5+p.Translate) * float64(dstW)
	t.TranslateY = uniform(rng, 0.5-p.Translate, 0.5+p.Translate) * float64(dstH)
	return t
}

// Matrix composes the 3x3 homography T·S·R·P·C.
//
// Returns:
// - A new 3x3 matrix mapping source pixel coordinates to canvas coordinates.
//
// @example
// m := Transform{Scale: 1, TranslateX: 320, TranslateY: 320, CenterX: -320, CenterY: -320}.Matrix()
func (t Transform) Matrix() *mat.Dense {
	c := eye()
	c.Set(0, 2, t.CenterX)
	c.Set(1, 2, t.CenterY)

	p := eye()
	p.Set(2, 0, t.PerspectiveX)
	p.Set(2, 1, t.PerspectiveY)

	// Rotation about the origin, same layout as OpenCV's getRotationMatrix2D.
	rad := t.Angle * math.Pi / 180
	alpha, beta := t.Scale*math.Cos(rad), t.Scale*math.Sin(rad)
	r := mat.NewDense(3, 3, []float64{
		alpha, beta, 0,
		-beta, alpha, 0,
		0, 0, 1,
	})

	s := eye()
	s.Set(0, 1, math.Tan(t.ShearX*math.Pi/180))
	s.Set(1, 0, math.Tan(t.ShearY*math.Pi/180))

	tr := eye()
	tr.Set(0, 2, t.TranslateX)
	tr.Set(1, 2, t.TranslateY)

	return compose(tr, s, r, p, c)
}

// Apply maps a point through m, dividing by the homogeneous coordinate when
// projective is set.
func Apply(m mat.Matrix, x, y float64, projective bool) (float64, float64) {
	u := m.At(0, 0)*x + m.At(0, 1)*y + m.At(0, 2)
	v := m.At(1, 0)*x + m.At(1, 1)*y + m.At(1, 2)
	if projective {
		w := m.At(2, 0)*x + m.At(2, 1)*y + m.At(2, 2)
		u /= w
		v /= w
	}
	return u, v
}

// IsIdentity reports whether m is exactly the 3x3 identity.
func IsIdentity(m mat.Matrix) bool {
	return mat.Equal(m, mat.NewDiagDense(3, []float64{1, 1, 1}))
}

// RandomPerspective applies a random rotation, scale, shear, translation and
// optional projective skew to img and to the boxes of targets.
//
// Every box is transformed through all four of its corners and re-bounded, so
// rotated boxes grow to contain the rotated rectangle. Boxes are clipped to the
// output canvas and kept only if BoxCandidates accepts them.
//
// Arguments:
// - rng: Source of randomness for this sample.
// - img: The source image; it is not modified.
// - targets: Boxes in img pixel coordinates.
// - p: Sampling ranges and output border.
//
// Returns:
// - The warped image (owned by the caller) of size img + 2*Border.
// - The surviving targets in output pixel coordinates.
// - error if img is empty or the output canvas is degenerate.
//
// @example
// out, kept, err := RandomPerspective(rng, mosaic, targets, PerspectiveParams{Scale: 0.5, Translate: 0.1, Border: image.Pt(-320, -320)})
func RandomPerspective(rng *rand.Rand, img gocv.Mat, targets []Target, p PerspectiveParams) (gocv.Mat, []Target, error) {
	if img.Empty() {
		return gocv.NewMat(), nil, errors.New("random perspective: empty image")
	}

	width := img.Cols() + 2*p.Border.X
	height := img.Rows() + 2*p.Border.Y
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), nil, errors.Errorf("random perspective: border %v leaves no canvas", p.Border)
	}

	t := SampleTransform(rng, p, img.Cols(), img.Rows(), width, height)
	m := t.Matrix()
	projective := p.Perspective != 0

	var out gocv.Mat
	if p.Border != (image.Point{}) || !IsIdentity(m) {
		out = warp(img, m, image.Pt(width, height), projective)
	} else {
		out = img.Clone()
	}

	if len(targets) == 0 {
		return out, nil, nil
	}

	kept := make([]Target, 0, len(targets))
	for _, tg := range targets {
		after := transformBox(m, tg.Box, projective).Clip(float32(width), float32(height))
		if BoxCandidates(tg.Box.Scale(float32(t.Scale)), after, DefaultCandidateThresholds) {
			kept = append(kept, Target{Class: tg.Class, Box: after})
		}
	}

	return out, kept, nil
}

// CandidateThresholds configures BoxCandidates.
type CandidateThresholds struct {
	// MinSize is the minimum width and height in pixels, exclusive.
	MinSize float32
	// MaxAspect is the maximum long/short side ratio, exclusive.
	MaxAspect float32
	// MinArea is the minimum fraction of the pre-transform area, exclusive.
	MinArea float32
}

// DefaultCandidateThresholds rejects boxes under 2px, thinner than 1:20 or
// that lost more than 80% of their area.
var DefaultCandidateThresholds = CandidateThresholds{MinSize: 2, MaxAspect: 20, MinArea: 0.2}

// BoxCandidates reports whether a box that was transformed from before into
// after is still a usable label.
//
// Arguments:
// - before: The box prior to the transform, already multiplied by the zoom.
// - after: The transformed and clipped box.
// - th: Rejection thresholds.
//
// Returns:
// - true if after is wide, tall and square enough and kept enough area.
func BoxCandidates(before, after images.Box, th CandidateThresholds) bool {
	w1, h1 := before.Width(), before.Height()
	w2, h2 := after.Width(), after.Height()
	ar := math32.Max(w2/(h2+1e-16), h2/(w2+1e-16))
	return w2 > th.MinSize &&
		h2 > th.MinSize &&
		w2*h2/(w1*h1+1e-16) > th.MinArea &&
		ar < th.MaxAspect
}

func transformBox(m mat.Matrix, b images.Box, projective bool) images.Box {
	corners := [4][2]float32{{b.X1, b.Y1}, {b.X2, b.Y2}, {b.X1, b.Y2}, {b.X2, b.Y1}}
	out := images.Box{X1: math32.Inf(1), Y1: math32.Inf(1), X2: math32.Inf(-1), Y2: math32.Inf(-1)}
	for _, c := range corners {
		x, y := Apply(m, float64(c[0]), float64(c[1]), projective)
		fx, fy := float32(x), float32(y)
		out.X1 = math32.Min(out.X1, fx)
		out.Y1 = math32.Min(out.Y1, fy)
		out.X2 = math32.Max(out.X2, fx)
		out.Y2 = math32.Max(out.Y2, fy)
	}
	return out
}

func warp(img gocv.Mat, m *mat.Dense, size image.Point, projective bool) gocv.Mat {
	rows := 2
	if projective {
		rows = 3
	}

	cvm := gocv.NewMatWithSize(rows, 3, gocv.MatTypeCV64F)
	defer cvm.Close()
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			cvm.SetDoubleAt(i, j, m.At(i, j))
		}
	}

	out := gocv.NewMat()
	if projective {
		gocv.WarpPerspectiveWithParams(img, &out, cvm, size, gocv.InterpolationLinear, gocv.BorderConstant, images.PadColor)
	} else {
		gocv.WarpAffineWithParams(img, &out, cvm, size, gocv.InterpolationLinear, gocv.BorderConstant, images.PadColor)
	}
	return out
}

func eye() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func compose(ms ...*mat.Dense) *mat.Dense {
	out := ms[0]
	for _, m := range ms[1:] {
		next := mat.NewDense(3, 3, nil)
		next.Mul(out, m)
		out = next
	}
	return out
}

// uniform returns a float drawn from [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// randInt returns an int drawn from [lo, hi], both inclusive.
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}
