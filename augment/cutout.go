package augment

import (
	"image"
	"math/rand/v2"

	"github.com/nvr-ai/go-dataprep/images"
	"gocv.io/x/gocv"
)

// cutoutScales are the mask sizes as fractions of the image side: one half,
// two quarters, four eighths and so on.
var cutoutScales = []float64{
	0.5,
	0.25, 0.25,
	0.125, 0.125, 0.125, 0.125,
	0.0625, 0.0625, 0.0625, 0.0625, 0.0625, 0.0625, 0.0625, 0.0625,
	0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125,
	0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125, 0.03125,
}

// CutoutOcclusion is the IoA above which an occluded label is dropped.
const CutoutOcclusion = 0.6

// Cutout paints random gray rectangles of decreasing size over img in place
// and removes targets that the larger rectangles mostly hide.
//
// Arguments:
// - rng: Source of randomness for this sample.
// - img: The BGR image, modified in place.
// - targets: Boxes in img pixel coordinates.
//
// Returns:
// - The targets that remain visible.
func Cutout(rng *rand.Rand, img *gocv.Mat, targets []Target) []Target {
	kept, _ := cutout(rng, img, targets)
	return kept
}

// cutout also returns the masks that took part in label removal.
func cutout(rng *rand.Rand, img *gocv.Mat, targets []Target) ([]Target, []images.Box) {
	h, w := img.Rows(), img.Cols()
	kept := append([]Target(nil), targets...)
	var masks []images.Box

	for _, s := range cutoutScales {
		maskH := randInt(rng, 1, max(1, int(float64(h)*s)))
		maskW := randInt(rng, 1, max(1, int(float64(w)*s)))

		xmin := max(0, randInt(rng, 0, w)-maskW/2)
		ymin := max(0, randInt(rng, 0, h)-maskH/2)
		xmax := min(w, xmin+maskW)
		ymax := min(h, ymin+maskH)

		fill := gocv.NewScalar(
			float64(randInt(rng, 64, 191)),
			float64(randInt(rng, 64, 191)),
			float64(randInt(rng, 64, 191)),
			0)
		if xmax > xmin && ymax > ymin {
			region := img.Region(image.Rect(xmin, ymin, xmax, ymax))
			region.SetTo(fill)
			region.Close()
		}

		if len(kept) == 0 || s <= 0.03 {
			continue
		}

		mask := images.Box{X1: float32(xmin), Y1: float32(ymin), X2: float32(xmax), Y2: float32(ymax)}
		masks = append(masks, mask)
		visible := kept[:0]
		for _, t := range kept {
			if images.IoA(mask, t.Box) < CutoutOcclusion {
				visible = append(visible, t)
			}
		}
		kept = visible
	}

	return kept, masks
}
