package dataset

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// imageCache holds every resized image of a dataset. It is filled once and
// read-only afterwards; readers receive clones.
type imageCache struct {
	imgs    []gocv.Mat
	orig    []images.Shape
	resized []images.Shape
	bytes   uint64
}

func newImageCache(ctx context.Context, paths []string, cfg Config, log *zap.SugaredLogger) (*imageCache, error) {
	c := &imageCache{
		imgs:    make([]gocv.Mat, len(paths)),
		orig:    make([]images.Shape, len(paths)),
		resized: make([]images.Shape, len(paths)),
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Caching images"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	} else {
		bar = progressbar.DefaultSilent(int64(len(paths)))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var total atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, orig, resized, err := images.LoadImage(p, cfg.ImgSize, cfg.Augment)
			if err != nil {
				img.Close()
				return err
			}
			c.imgs[i], c.orig[i], c.resized[i] = img, orig, resized
			total.Add(uint64(img.Rows() * img.Cols() * img.Channels()))
			return bar.Add(1)
		})
	}
	if err := g.Wait(); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to cache images")
	}
	_ = bar.Finish()

	c.bytes = total.Load()
	log.Infow("cached images", "images", len(paths), "size", humanize.Bytes(c.bytes))
	return c, nil
}

func (c *imageCache) get(index int) (gocv.Mat, images.Shape, images.Shape, error) {
	return c.imgs[index].Clone(), c.orig[index], c.resized[index], nil
}

// Close releases every cached Mat. Slots that were never filled hold a zero
// Mat and are skipped.
func (c *imageCache) Close() {
	for i := range c.imgs {
		if c.resized[i] != (images.Shape{}) {
			c.imgs[i].Close()
		}
	}
}
