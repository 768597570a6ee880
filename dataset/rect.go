package dataset

import (
	"image"
	"math"
	"sort"

	"github.com/nvr-ai/go-dataprep/images"
)

// BatchShapes orders samples by aspect ratio (height/width) and computes one
// letterbox shape per batch of batchSize consecutive samples in that order.
//
// A batch of only wide images gets the height of its tallest member, a batch
// of only tall images the width of its widest member, and a mixed batch stays
// square. Every side is ceil(side*imgSize/stride + pad) * stride.
//
// Arguments:
// - shapes: Original image shapes.
// - batchSize: Samples per batch.
// - imgSize: The square training size.
// - stride: Alignment of the output sides.
// - pad: Extra padding in strides.
//
// Returns:
// - The sample order; order[i] is the original index of sorted sample i.
// - The shape of every batch (X=width, Y=height).
//
// @example
// order, shapes := BatchShapes([]images.Shape{{H: 480, W: 640}}, 16, 640, 32, 0.5)
func BatchShapes(shapes []images.Shape, batchSize, imgSize, stride int, pad float64) ([]int, []image.Point) {
	n := len(shapes)
	ar := make([]float64, n)
	order := make([]int, n)
	for i, s := range shapes {
		ar[i] = float64(s.H) / float64(s.W)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ar[order[a]] < ar[order[b]] })

	nb := (n + batchSize - 1) / batchSize
	out := make([]image.Point, nb)
	for b := 0; b < nb; b++ {
		start, end := b*batchSize, min((b+1)*batchSize, n)
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range order[start:end] {
			lo = math.Min(lo, ar[i])
			hi = math.Max(hi, ar[i])
		}

		h, w := 1.0, 1.0
		switch {
		case hi < 1:
			h = hi
		case lo > 1:
			w = 1 / lo
		}
		out[b] = image.Pt(alignSide(w, imgSize, stride, pad), alignSide(h, imgSize, stride, pad))
	}
	return order, out
}

func alignSide(ratio float64, imgSize, stride int, pad float64) int {
	return int(math.Ceil(ratio*float64(imgSize)/float64(stride)+pad)) * stride
}
