// Package dataset turns a directory or manifest of labeled images into
// augmented, collated training batches.
package dataset

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/nvr-ai/go-dataprep/augment"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/nvr-ai/go-dataprep/labels"
	"github.com/nvr-ai/go-dataprep/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dataset indexes the usable images of a dataset with their validated labels.
// After New it is read-only, so Get may be called from many goroutines.
type Dataset struct {
	cfg    Config
	log    *zap.SugaredLogger
	mosaic bool

	imgFiles   []string
	labelFiles []string
	labels     [][]Label
	shapes     []images.Shape

	// batch[i] is the batch of sample i; batchShapes is set in rect mode.
	batch       []int
	batchShapes []image.Point

	stats      labels.Stats
	duplicates int
	cache      *imageCache
}

// New resolves cfg.Path, loads or rebuilds the label cache and validates every
// label set.
//
// Images the scan could not use are dropped from the index. A malformed label
// file aborts construction with a *LabelError.
//
// Arguments:
// - ctx: Cancels scanning and image caching.
// - cfg: Dataset configuration.
// - log: Logger for scan summaries and warnings; nil disables logging.
//
// Returns:
// - The dataset.
// - error wrapping ErrNotExist, ErrNoImages or ErrNoLabels, a *LabelError,
// or a scan error.
//
// @example
// cfg := DefaultConfig()
// cfg.Path = []string{"coco128/images/train2017"}
// ds, err := New(ctx, cfg, logger)
//
//	if err != nil {
//	    return err
//	}
//
// defer ds.Close()
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Dataset, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid dataset config")
	}

	files, err := util.ResolveImageFiles(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load data from %v", cfg.Path)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "%v", cfg.Path)
	}

	labelFiles := labels.LabelPaths(files)
	cache, fromCache, err := labels.LoadOrScan(ctx, files, labelFiles, labels.Options{
		Workers:  cfg.Workers,
		Progress: cfg.Progress,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		cfg:    cfg,
		log:    log,
		mosaic: cfg.Augment && !cfg.Rect,
		stats:  cache.Stats(),
	}

	for i, f := range files {
		e := cache.Entries[f]
		if !e.Usable() {
			continue
		}
		rows, dup, err := validateLabels(labelFiles[i], e.Labels, cfg.SingleClass)
		if err != nil {
			return nil, err
		}
		if dup {
			d.duplicates++
		}
		d.imgFiles = append(d.imgFiles, f)
		d.labelFiles = append(d.labelFiles, labelFiles[i])
		d.labels = append(d.labels, rows)
		d.shapes = append(d.shapes, e.Shape)
	}

	log.Infow("scanned labels",
		"cache", labels.CachePath(labelFiles),
		"cached", fromCache,
		"images", len(files),
		"found", d.stats.Found,
		"missing", d.stats.Missing,
		"empty", d.stats.Empty,
		"corrupt", d.stats.Corrupt,
		"duplicate", d.duplicates,
	)

	if len(d.imgFiles) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "no usable image in %v", cfg.Path)
	}
	if d.stats.Found == 0 {
		log.Warnw("no labels found", "path", cfg.Path)
		if cfg.Augment {
			return nil, errors.Wrapf(ErrNoLabels, "%v", cfg.Path)
		}
	}

	d.batch = make([]int, len(d.imgFiles))
	for i := range d.batch {
		d.batch[i] = i / cfg.BatchSize
	}
	if cfg.Rect {
		d.sortRect()
	}

	if cfg.CacheImages {
		if d.cache, err = newImageCache(ctx, d.imgFiles, cfg, log); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// validateLabels converts raw rows after checking the column count and value
// ranges. The bool result reports duplicate rows.
func validateLabels(path string, rows [][]float32, singleClass bool) ([]Label, bool, error) {
	if len(rows) == 0 {
		return nil, false, nil
	}

	out := make([]Label, len(rows))
	seen := make(map[[5]float32]struct{}, len(rows))
	dup := false
	for i, r := range rows {
		if len(r) != 5 {
			return nil, false, &LabelError{Path: path, Reason: fmt.Sprintf("%d label columns, expected 5", len(r))}
		}
		for j, v := range r {
			if !(v >= 0) {
				return nil, false, &LabelError{Path: path, Reason: "negative label values"}
			}
			if j > 0 && !(v <= 1) {
				return nil, false, &LabelError{Path: path, Reason: "non-normalized or out of bounds coordinate labels"}
			}
		}

		key := [5]float32(r)
		if _, ok := seen[key]; ok {
			dup = true
		}
		seen[key] = struct{}{}

		class := r[0]
		if singleClass {
			class = 0
		}
		out[i] = Label{Class: class, Box: images.XYWH{CX: r[1], CY: r[2], W: r[3], H: r[4]}}
	}
	return out, dup, nil
}

func (d *Dataset) sortRect() {
	order, shapes := BatchShapes(d.shapes, d.cfg.BatchSize, d.cfg.ImgSize, d.cfg.Stride, d.cfg.Pad)
	d.imgFiles = permute(d.imgFiles, order)
	d.labelFiles = permute(d.labelFiles, order)
	d.labels = permute(d.labels, order)
	d.shapes = permute(d.shapes, order)
	d.batchShapes = shapes
}

func permute[T any](s []T, order []int) []T {
	out := make([]T, len(order))
	for i, j := range order {
		out[i] = s[j]
	}
	return out
}

// Len returns the number of usable images.
func (d *Dataset) Len() int { return len(d.imgFiles) }

// Paths returns the image paths in index order.
func (d *Dataset) Paths() []string { return d.imgFiles }

// Labels returns the validated labels of sample index.
func (d *Dataset) Labels(index int) []Label { return d.labels[index] }

// Stats returns the scan outcome counts.
func (d *Dataset) Stats() labels.Stats { return d.stats }

// Duplicates returns the number of label files with repeated rows.
func (d *Dataset) Duplicates() int { return d.duplicates }

// BatchShape returns the letterbox shape of the batch holding sample index.
// It is false outside rect mode.
func (d *Dataset) BatchShape(index int) (image.Point, bool) {
	if d.batchShapes == nil {
		return image.Point{}, false
	}
	return d.batchShapes[d.batch[index]], true
}

// Config returns the configuration the dataset was built with.
func (d *Dataset) Config() Config { return d.cfg }

// Close releases cached images.
func (d *Dataset) Close() {
	if d.cache != nil {
		d.cache.Close()
	}
}

// Rand returns the generator for sample index in epoch. Every draw of a
// sample comes from it, so a sample only depends on (seed, epoch, index).
func (d *Dataset) Rand(index, epoch int) *rand.Rand {
	return rand.New(rand.NewPCG(d.cfg.Seed^(uint64(epoch)*0x9e3779b97f4a7c15), uint64(index)))
}

// Get builds sample index for epoch.
//
// Arguments:
// - index: Sample index in [0, Len()).
// - epoch: Training epoch; each epoch draws different augmentations.
//
// Returns:
// - The sample.
// - error if an image cannot be read.
func (d *Dataset) Get(index, epoch int) (*Item, error) {
	if index < 0 || index >= d.Len() {
		return nil, errors.Errorf("index %d out of range [0, %d)", index, d.Len())
	}

	rng := d.Rand(index, epoch)
	hyp := d.cfg.Hyp

	var (
		img     gocv.Mat
		targets []augment.Target
		shapes  *ShapeInfo
		err     error
	)
	if d.mosaic {
		img, targets, err = d.mosaicWithMixup(rng, index)
	} else {
		img, targets, shapes, err = d.letterboxed(index)
	}
	if err != nil {
		img.Close()
		return nil, err
	}
	defer func() { img.Close() }()

	if d.cfg.Augment {
		if !d.mosaic {
			warped, kept, err := augment.RandomPerspective(rng, img, targets, hyp.PerspectiveParams(image.Point{}))
			if err != nil {
				return nil, errors.Wrap(err, d.imgFiles[index])
			}
			img.Close()
			img, targets = warped, kept
		}
		if err := augment.AugmentHSV(rng, &img, hyp.HSVGains()); err != nil {
			return nil, errors.Wrap(err, d.imgFiles[index])
		}
		if rng.Float64() < hyp.Cutout {
			targets = augment.Cutout(rng, &img, targets)
		}
	}

	h, w := float32(img.Rows()), float32(img.Cols())
	boxes := make([]images.XYWH, len(targets))
	for i, t := range targets {
		boxes[i] = images.XYXYToXYWH(t.Box, w, h)
	}

	if d.cfg.Augment {
		if rng.Float64() < hyp.FlipUD {
			boxes = augment.FlipUD(&img, boxes)
		}
		if rng.Float64() < hyp.FlipLR {
			boxes = augment.FlipLR(&img, boxes)
		}
	}

	pixels, err := images.MatToCHW(img)
	if err != nil {
		return nil, errors.Wrap(err, d.imgFiles[index])
	}

	item := &Item{
		Image:  pixels,
		Height: img.Rows(),
		Width:  img.Cols(),
		Labels: make([][6]float32, len(targets)),
		Path:   d.imgFiles[index],
		Shapes: shapes,
	}
	for i, t := range targets {
		b := boxes[i]
		item.Labels[i] = [6]float32{0, t.Class, b.CX, b.CY, b.W, b.H}
	}
	return item, nil
}

// letterboxed loads sample index resized to its training shape.
func (d *Dataset) letterboxed(index int) (gocv.Mat, []augment.Target, *ShapeInfo, error) {
	img, orig, resized, err := d.loadImage(index)
	if err != nil {
		return img, nil, nil, err
	}
	defer img.Close()

	shape := image.Pt(d.cfg.ImgSize, d.cfg.ImgSize)
	if s, ok := d.BatchShape(index); ok {
		shape = s
	}

	lb, err := images.Letterbox(img, images.LetterboxOptions{
		Shape:   shape,
		Color:   images.PadColor,
		ScaleUp: d.cfg.Augment,
	})
	if err != nil {
		return gocv.NewMat(), nil, nil, errors.Wrap(err, d.imgFiles[index])
	}

	info := &ShapeInfo{
		H0:     orig.H,
		W0:     orig.W,
		RatioH: float64(resized.H) / float64(orig.H),
		RatioW: float64(resized.W) / float64(orig.W),
		PadX:   lb.PadX,
		PadY:   lb.PadY,
	}

	scaledW := float32(lb.RatioX) * float32(resized.W)
	scaledH := float32(lb.RatioY) * float32(resized.H)
	targets := make([]augment.Target, len(d.labels[index]))
	for i, l := range d.labels[index] {
		targets[i] = augment.Target{
			Class: l.Class,
			Box:   images.XYWHToXYXY(l.Box, scaledW, scaledH, float32(lb.PadX), float32(lb.PadY)),
		}
	}
	return lb.Image, targets, info, nil
}

// mosaicWithMixup builds a mosaic and, with probability Hyp.Mixup, blends a
// second one into it.
func (d *Dataset) mosaicWithMixup(rng *rand.Rand, index int) (gocv.Mat, []augment.Target, error) {
	img, targets, err := d.LoadMosaic(rng, index)
	if err != nil {
		return img, nil, err
	}
	if rng.Float64() >= d.cfg.Hyp.Mixup {
		return img, targets, nil
	}

	img2, targets2, err := d.LoadMosaic(rng, rng.IntN(d.Len()))
	if err != nil {
		img.Close()
		return img2, nil, err
	}
	defer img2.Close()
	defer img.Close()

	r := distuv.Beta{Alpha: 8, Beta: 8, Src: betaSource{rng}}.Rand()
	mixed := gocv.NewMat()
	gocv.AddWeighted(img, r, img2, 1-r, 0, &mixed)
	return mixed, append(targets, targets2...), nil
}

// betaSource adapts a *rand.Rand to the distuv source interface.
type betaSource struct{ *rand.Rand }

func (betaSource) Seed(uint64) {}

// loadImage returns sample index resized to ImgSize on its long side, from
// the in-memory cache when enabled.
func (d *Dataset) loadImage(index int) (gocv.Mat, images.Shape, images.Shape, error) {
	if d.cache != nil {
		return d.cache.get(index)
	}
	return images.LoadImage(d.imgFiles[index], d.cfg.ImgSize, d.cfg.Augment)
}
