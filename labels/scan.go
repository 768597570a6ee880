package labels

import (
	"context"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures Scan and LoadOrScan.
type Options struct {
	// Workers bounds the number of files scanned concurrently. Zero means
	// runtime.NumCPU().
	Workers int
	// Progress renders a progress bar on stderr.
	Progress bool
	// Logger receives per-file warnings. Nil disables logging.
	Logger *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

// Scan reads the header of every image and its label file. A file that cannot
// be used is recorded with Entry.Err and a warning; the scan continues.
//
// Arguments:
// - ctx: Cancels the scan.
// - imgFiles: Image paths.
// - labelFiles: Label paths, aligned with imgFiles.
// - opts: Concurrency and reporting options.
//
// Returns:
// - The cache with one entry per image and the hash of all files.
// - error if the inputs are misaligned or ctx is canceled.
//
// @example
// cache, err := Scan(ctx, imgs, LabelPaths(imgs), Options{Progress: true, Logger: log})
func Scan(ctx context.Context, imgFiles, labelFiles []string, opts Options) (*Cache, error) {
	if len(imgFiles) != len(labelFiles) {
		return nil, errors.Errorf("scan: %d images but %d label files", len(imgFiles), len(labelFiles))
	}

	log := opts.logger()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(len(imgFiles),
			progressbar.OptionSetDescription("Scanning images"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	} else {
		bar = progressbar.DefaultSilent(int64(len(imgFiles)))
	}

	entries := make([]*Entry, len(imgFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range imgFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = scanFile(imgFiles[i], labelFiles[i])
			if !entries[i].Usable() {
				log.Warnw("skipping unusable image", "path", imgFiles[i], "error", entries[i].Err)
			}
			return bar.Add(1)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "scan interrupted")
	}
	_ = bar.Finish()

	c := &Cache{
		Version: CacheVersion,
		Hash:    Hash(labelFiles, imgFiles),
		Entries: make(map[string]*Entry, len(imgFiles)),
	}
	for i, p := range imgFiles {
		c.Entries[p] = entries[i]
	}
	return c, nil
}

func scanFile(imgPath, labelPath string) *Entry {
	shape, err := ReadShape(imgPath)
	if err != nil {
		return &Entry{Err: err.Error()}
	}

	rows, missing, err := ParseLabelFile(labelPath)
	if err != nil {
		return &Entry{Shape: shape, Err: err.Error()}
	}
	return &Entry{Labels: rows, Shape: shape, LabelMissing: missing}
}

// LoadOrScan returns the cache stored next to the label directory when it is
// current, and otherwise rescans and rewrites it. A cache is current when its
// hash matches the files on disk and it covers every image.
//
// Returns:
// - The cache.
// - true if the cache was loaded rather than rebuilt.
// - error if the scan fails.
func LoadOrScan(ctx context.Context, imgFiles, labelFiles []string, opts Options) (*Cache, bool, error) {
	log := opts.logger()
	path := CachePath(labelFiles)

	if c, err := LoadCache(path); err == nil {
		if c.Hash == Hash(labelFiles, imgFiles) && covers(c, imgFiles) {
			log.Debugw("loaded label cache", "path", path, "entries", len(c.Entries))
			return c, true, nil
		}
		log.Infow("label cache is stale, rescanning", "path", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warnw("ignoring unreadable label cache", "path", path, "error", err)
	}

	c, err := Scan(ctx, imgFiles, labelFiles, opts)
	if err != nil {
		return nil, false, err
	}

	if path != "" {
		if err := c.Save(path); err != nil {
			log.Warnw("failed to save label cache", "path", path, "error", err)
		} else {
			log.Infow("saved label cache", "path", path, "entries", len(c.Entries))
		}
	}
	return c, false, nil
}

func covers(c *Cache, imgFiles []string) bool {
	for _, p := range imgFiles {
		if _, ok := c.Entries[p]; !ok {
			return false
		}
	}
	return true
}
