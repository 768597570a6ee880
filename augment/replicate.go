package augment

import (
	"image"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvr-ai/go-dataprep/images"
	"gocv.io/x/gocv"
)

// Replicate copies the pixels of the smaller half of the targets to random
// locations of img and appends a target for every copy.
//
// Arguments:
// - rng: Source of randomness for this sample.
// - img: The BGR image, modified in place.
// - targets: Boxes in img pixel coordinates.
//
// Returns:
// - The input targets followed by one target per replicated box.
func Replicate(rng *rand.Rand, img *gocv.Mat, targets []Target) []Target {
	h, w := img.Rows(), img.Cols()
	out := append([]Target(nil), targets...)

	boxes := make([]image.Rectangle, len(targets))
	order := make([]int, len(targets))
	for i, t := range targets {
		boxes[i] = image.Rect(int(t.Box.X1), int(t.Box.Y1), int(t.Box.X2), int(t.Box.Y2))
		order[i] = i
	}

	// Smallest mean side first.
	side := func(r image.Rectangle) int { return r.Dx() + r.Dy() }
	sort.SliceStable(order, func(a, b int) bool { return side(boxes[order[a]]) < side(boxes[order[b]]) })

	n := int(math.RoundToEven(float64(len(targets)) * 0.5))
	for _, i := range order[:n] {
		src := boxes[i].Intersect(image.Rect(0, 0, w, h))
		if src.Empty() || src != boxes[i] {
			continue
		}

		bw, bh := src.Dx(), src.Dy()
		yc := int(uniform(rng, 0, float64(h-bh)))
		xc := int(uniform(rng, 0, float64(w-bw)))
		dst := image.Rect(xc, yc, xc+bw, yc+bh)

		patch := img.Region(src)
		copied := patch.Clone()
		patch.Close()
		target := img.Region(dst)
		copied.CopyTo(&target)
		target.Close()
		copied.Close()

		out = append(out, Target{
			Class: targets[i].Class,
			Box:   images.Box{X1: float32(dst.Min.X), Y1: float32(dst.Min.Y), X2: float32(dst.Max.X), Y2: float32(dst.Max.Y)},
		})
	}

	return out
}
