package dataset

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch is a collated group of items.
type Batch struct {
	// Images has shape (B, 3, H, W) and type uint8.
	Images *tensor.Dense
	// Labels has shape (N, 6) and type float32, or is nil when the batch has
	// no labels.
	Labels *tensor.Dense
	// Targets holds the same rows as Labels.
	Targets [][6]float32
	// Paths and Shapes are aligned with the batch dimension.
	Paths  []string
	Shapes []*ShapeInfo
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int { return len(b.Paths) }

// Collate stacks items into a Batch. The first column of every label row is
// set to the position of its item within the batch, which is how consumers
// of the flat label table find the image a box belongs to.
//
// Arguments:
// - items: Samples of identical image size.
//
// Returns:
// - The batch.
// - error if items is empty or the image sizes differ.
func Collate(items []*Item) (*Batch, error) {
	if len(items) == 0 {
		return nil, errors.New("collate: empty batch")
	}

	h, w := items[0].Height, items[0].Width
	plane := 3 * h * w
	pixels := make([]uint8, len(items)*plane)

	b := &Batch{
		Paths:  make([]string, len(items)),
		Shapes: make([]*ShapeInfo, len(items)),
	}
	for i, it := range items {
		if it.Height != h || it.Width != w || len(it.Image) != plane {
			return nil, errors.Errorf("collate: item %d is %dx%d, expected %dx%d", i, it.Width, it.Height, w, h)
		}
		copy(pixels[i*plane:], it.Image)

		for _, l := range it.Labels {
			l[0] = float32(i)
			b.Targets = append(b.Targets, l)
		}
		b.Paths[i] = it.Path
		b.Shapes[i] = it.Shapes
	}

	b.Images = tensor.New(tensor.WithShape(len(items), 3, h, w), tensor.WithBacking(pixels))
	if len(b.Targets) > 0 {
		flat := make([]float32, 0, len(b.Targets)*6)
		for _, t := range b.Targets {
			flat = append(flat, t[:]...)
		}
		b.Labels = tensor.New(tensor.WithShape(len(b.Targets), 6), tensor.WithBacking(flat))
	}
	return b, nil
}
