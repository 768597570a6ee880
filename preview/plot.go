// Package preview renders collated batches for visual inspection of the
// augmentation pipeline.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-dataprep/dataset"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
)

// Options controls the preview grid.
type Options struct {
	// MaxSize bounds the canvas side in pixels.
	MaxSize int `json:"max_size" yaml:"max_size"`
	// MaxSubplots bounds how many samples are drawn.
	MaxSubplots int `json:"max_subplots" yaml:"max_subplots"`
	// Names maps class ids to names; ids are printed when it is short.
	Names []string `json:"names" yaml:"names"`
	// LineWidth of box outlines.
	LineWidth float64 `json:"line_width" yaml:"line_width"`
	// Filenames prints each sample's file name above its tile.
	Filenames bool `json:"filenames" yaml:"filenames"`
}

// DefaultOptions returns a 16-tile, 1920 pixel grid.
func DefaultOptions() Options {
	return Options{MaxSize: 1920, MaxSubplots: 16, LineWidth: 2, Filenames: true}
}

// Palette colors boxes by class id.
var Palette = []color.RGBA{
	{255, 56, 56, 255}, {255, 157, 151, 255}, {255, 112, 31, 255}, {255, 178, 29, 255},
	{207, 210, 49, 255}, {72, 249, 10, 255}, {146, 204, 23, 255}, {61, 219, 134, 255},
	{26, 147, 52, 255}, {0, 212, 187, 255}, {44, 153, 168, 255}, {0, 194, 255, 255},
	{52, 69, 147, 255}, {100, 115, 255, 255}, {0, 24, 236, 255}, {132, 56, 255, 255},
	{82, 0, 133, 255}, {203, 56, 255, 255}, {255, 149, 200, 255}, {255, 55, 199, 255},
}

// RenderBatch draws up to MaxSubplots samples of b on a square grid of
// tiles, with every label box outlined in its class color.
//
// Arguments:
// - b: A batch from dataset.Collate.
// - opts: Grid options.
//
// Returns:
// - The rendered grid.
// - error if the batch has no images or an unexpected tensor layout.
func RenderBatch(b *dataset.Batch, opts Options) (*image.NRGBA, error) {
	if b == nil || b.Images == nil {
		return nil, errors.New("preview: empty batch")
	}
	shape := b.Images.Shape()
	if len(shape) != 4 || shape[1] != 3 {
		return nil, errors.Errorf("preview: expected (B, 3, H, W) images, got %v", shape)
	}
	pixels, ok := b.Images.Data().([]uint8)
	if !ok {
		return nil, errors.Errorf("preview: expected uint8 images, got %v", b.Images.Dtype())
	}
	if opts.MaxSubplots <= 0 {
		opts.MaxSubplots = DefaultOptions().MaxSubplots
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultOptions().MaxSize
	}

	bs, h, w := min(shape[0], opts.MaxSubplots), shape[2], shape[3]
	ns := int(math.Ceil(math.Sqrt(float64(bs))))

	// Shrink tiles only when the grid would exceed MaxSize.
	scale := float64(opts.MaxSize) / float64(ns) / float64(max(h, w))
	th, tw := h, w
	if scale < 1 {
		th, tw = int(math.Ceil(scale*float64(h))), int(math.Ceil(scale*float64(w)))
	}

	canvas := imaging.New(ns*tw, ns*th, color.White)
	plane := 3 * h * w
	for i := 0; i < bs; i++ {
		var tile image.Image = images.CHWToImage(pixels[i*plane:(i+1)*plane], h, w)
		if th != h || tw != w {
			tile = resize.Resize(uint(tw), uint(th), tile, resize.Bilinear)
		}
		canvas = imaging.Paste(canvas, tile, image.Pt((i%ns)*tw, (i/ns)*th))
	}

	dc := gg.NewContextForImage(canvas)
	dc.SetLineWidth(opts.LineWidth)
	for _, t := range b.Targets {
		i := int(t[0])
		if i >= bs {
			continue
		}
		x0, y0 := float64((i%ns)*tw), float64((i/ns)*th)
		box := images.XYWHToXYXY(images.XYWH{CX: t[2], CY: t[3], W: t[4], H: t[5]}, float32(tw), float32(th), 0, 0)

		cls := int(t[1])
		dc.SetColor(Palette[cls%len(Palette)])
		dc.DrawRectangle(x0+float64(box.X1), y0+float64(box.Y1), float64(box.X2-box.X1), float64(box.Y2-box.Y1))
		dc.Stroke()
		dc.DrawString(className(cls, opts.Names), x0+float64(box.X1)+2, y0+float64(box.Y1)-2)
	}

	// Tile borders and names.
	dc.SetColor(color.White)
	dc.SetLineWidth(1)
	for i := 0; i < bs; i++ {
		x0, y0 := float64((i%ns)*tw), float64((i/ns)*th)
		dc.DrawRectangle(x0, y0, float64(tw), float64(th))
		dc.Stroke()
		if opts.Filenames && i < len(b.Paths) {
			name := filepath.Base(b.Paths[i])
			if len(name) > 40 {
				name = name[:40]
			}
			dc.SetColor(color.RGBA{220, 220, 220, 255})
			dc.DrawString(name, x0+5, y0+15)
			dc.SetColor(color.White)
		}
	}

	return imaging.Clone(dc.Image()), nil
}

// PlotBatch renders b and writes it as a PNG.
func PlotBatch(b *dataset.Batch, path string, opts Options) error {
	img, err := RenderBatch(b, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	if err := dc.SavePNG(path); err != nil {
		return errors.Wrapf(err, "failed to save preview %s", path)
	}
	return nil
}

func className(cls int, names []string) string {
	if cls >= 0 && cls < len(names) {
		return names[cls]
	}
	return strconv.Itoa(cls)
}

// Summary describes a batch in one line, for logs.
func Summary(b *dataset.Batch) string {
	return fmt.Sprintf("%d images %v, %d labels", b.Len(), b.Images.Shape(), len(b.Targets))
}
