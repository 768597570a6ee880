package dataset

import (
	"image"
	"math/rand/v2"

	"github.com/nvr-ai/go-dataprep/augment"
	"github.com/nvr-ai/go-dataprep/images"
	"gocv.io/x/gocv"
)

// mosaicTile is one source image of a mosaic with its normalized labels.
type mosaicTile struct {
	img    gocv.Mat
	labels []Label
}

// LoadMosaic tiles sample index and three random samples around a center
// point of a 2s x 2s canvas (s = ImgSize), then crops it back to s x s with
// a random perspective transform.
//
// Arguments:
// - rng: Source of randomness for this sample.
// - index: The sample placed in the top-left quadrant.
//
// Returns:
// - The s x s mosaic, owned by the caller.
// - The surviving targets in mosaic pixel coordinates.
// - error if a source image cannot be read.
func (d *Dataset) LoadMosaic(rng *rand.Rand, index int) (gocv.Mat, []augment.Target, error) {
	indices := [4]int{index, rng.IntN(d.Len()), rng.IntN(d.Len()), rng.IntN(d.Len())}
	return d.loadMosaic(rng, indices)
}

func (d *Dataset) loadMosaic(rng *rand.Rand, indices [4]int) (gocv.Mat, []augment.Target, error) {
	s := d.cfg.ImgSize
	hyp := d.cfg.Hyp

	xc, yc := s, s
	if hyp.MosaicCenterJitter {
		xc = int(float64(s)/2 + rng.Float64()*float64(s))
		yc = int(float64(s)/2 + rng.Float64()*float64(s))
	}

	var tiles [4]mosaicTile
	loaded := 0
	defer func() {
		for _, t := range tiles[:loaded] {
			t.img.Close()
		}
	}()
	for i, idx := range indices {
		img, _, _, err := d.loadImage(idx)
		if err != nil {
			img.Close()
			return gocv.NewMat(), nil, err
		}
		tiles[i] = mosaicTile{img: img, labels: d.labels[idx]}
		loaded++
	}

	canvas, targets := composeMosaic(tiles, s, xc, yc)
	defer canvas.Close()

	if rng.Float64() < hyp.Replicate {
		targets = augment.Replicate(rng, &canvas, targets)
	}

	border := -(s + 1) / 2
	out, kept, err := augment.RandomPerspective(rng, canvas, targets, hyp.PerspectiveParams(image.Pt(border, border)))
	if err != nil {
		return gocv.NewMat(), nil, err
	}
	return out, kept, nil
}

// mosaicPlacement returns, for quadrant i, the canvas rectangle a that the
// tile occupies and the tile rectangle b copied into it.
func mosaicPlacement(i, s, xc, yc, w, h int) (a, b image.Rectangle) {
	switch i {
	case 0: // top left
		a = image.Rect(max(xc-w, 0), max(yc-h, 0), xc, yc)
		b = image.Rect(w-a.Dx(), h-a.Dy(), w, h)
	case 1: // top right
		a = image.Rect(xc, max(yc-h, 0), min(xc+w, 2*s), yc)
		b = image.Rect(0, h-a.Dy(), min(w, a.Dx()), h)
	case 2: // bottom left
		a = image.Rect(max(xc-w, 0), yc, xc, min(2*s, yc+h))
		b = image.Rect(w-a.Dx(), 0, w, min(a.Dy(), h))
	default: // bottom right
		a = image.Rect(xc, yc, min(xc+w, 2*s), min(2*s, yc+h))
		b = image.Rect(0, 0, min(w, a.Dx()), min(a.Dy(), h))
	}
	return a, b
}

// composeMosaic places the tiles on a 2s x 2s canvas around (xc, yc) and maps
// their labels to canvas pixels clipped to the canvas.
func composeMosaic(tiles [4]mosaicTile, s, xc, yc int) (gocv.Mat, []augment.Target) {
	canvas := images.NewFilledMat(2*s, 2*s)
	var targets []augment.Target

	for i, t := range tiles {
		h, w := t.img.Rows(), t.img.Cols()
		a, b := mosaicPlacement(i, s, xc, yc, w, h)

		if !a.Empty() {
			src := t.img.Region(b)
			dst := canvas.Region(a)
			src.CopyTo(&dst)
			dst.Close()
			src.Close()
		}

		padW := float32(a.Min.X - b.Min.X)
		padH := float32(a.Min.Y - b.Min.Y)
		for _, l := range t.labels {
			box := images.XYWHToXYXY(l.Box, float32(w), float32(h), padW, padH)
			targets = append(targets, augment.Target{
				Class: l.Class,
				Box:   box.Clip(float32(2*s), float32(2*s)),
			})
		}
	}

	return canvas, targets
}
