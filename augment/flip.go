package augment

import (
	"github.com/nvr-ai/go-dataprep/images"
	"gocv.io/x/gocv"
)

// FlipLR mirrors img around its vertical axis in place and returns boxes with
// their normalized center x mirrored.
func FlipLR(img *gocv.Mat, boxes []images.XYWH) []images.XYWH {
	gocv.Flip(*img, img, 1)
	out := make([]images.XYWH, len(boxes))
	for i, b := range boxes {
		b.CX = 1 - b.CX
		out[i] = b
	}
	return out
}

// FlipUD mirrors img around its horizontal axis in place and returns boxes
// with their normalized center y mirrored.
func FlipUD(img *gocv.Mat, boxes []images.XYWH) []images.XYWH {
	gocv.Flip(*img, img, 0)
	out := make([]images.XYWH, len(boxes))
	for i, b := range boxes {
		b.CY = 1 - b.CY
		out[i] = b
	}
	return out
}
