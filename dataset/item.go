package dataset

import "github.com/nvr-ai/go-dataprep/images"

// Label is one normalized label row.
type Label struct {
	Class float32
	Box   images.XYWH
}

// ShapeInfo records how a validation image was resized, for mapping
// predictions back to the original image.
type ShapeInfo struct {
	// H0 and W0 are the original image size.
	H0, W0 int
	// RatioH and RatioW are resized/original, before letterboxing.
	RatioH, RatioW float64
	// PadX and PadY are the letterbox paddings.
	PadX, PadY float64
}

// Item is one fetched training sample.
type Item struct {
	// Image is the RGB image in channel-first order.
	Image []uint8
	// Height and Width of Image.
	Height, Width int
	// Labels rows are (sample index, class, cx, cy, w, h). The sample index is
	// left at 0 and filled by Collate.
	Labels [][6]float32
	// Path is the source image.
	Path string
	// Shapes is nil for mosaic samples.
	Shapes *ShapeInfo
}
