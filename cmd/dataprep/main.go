// Command dataprep scans detection datasets, renders augmented batches,
// downsizes image folders and gathers listed images into one folder.
package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/nvr-ai/go-dataprep/dataset"
	"github.com/nvr-ai/go-dataprep/preview"
	"github.com/nvr-ai/go-dataprep/profiler"
	"github.com/nvr-ai/go-dataprep/util"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	parser := argparse.NewParser("dataprep", "Detection dataset preparation")
	debug := parser.Flag("", "debug", &argparse.Options{Help: "Verbose development logging", Default: false})

	scanCmd := parser.NewCommand("scan", "Scan images and labels and update the label cache")
	scanData := scanCmd.StringList("d", "data", &argparse.Options{Help: "Manifest file or image directory (repeatable)", Required: true})
	scanSingle := scanCmd.Flag("", "single-cls", &argparse.Options{Help: "Collapse all classes to 0", Default: false})

	previewCmd := parser.NewCommand("preview", "Render augmented training batches as PNG grids")
	previewData := previewCmd.StringList("d", "data", &argparse.Options{Help: "Manifest file or image directory (repeatable)", Required: true})
	previewOut := previewCmd.String("o", "output", &argparse.Options{Help: "Output directory", Default: "preview"})
	previewHyp := previewCmd.String("", "hyp", &argparse.Options{Help: "Hyperparameter YAML file", Default: ""})
	previewImg := previewCmd.Int("", "img", &argparse.Options{Help: "Image size", Default: 640})
	previewBatch := previewCmd.Int("b", "batch", &argparse.Options{Help: "Batch size", Default: 16})
	previewCount := previewCmd.Int("n", "batches", &argparse.Options{Help: "Number of batches to render", Default: 3})
	previewEpoch := previewCmd.Int("", "epoch", &argparse.Options{Help: "Epoch to draw augmentations for", Default: 0})
	previewSeed := previewCmd.Int("", "seed", &argparse.Options{Help: "Random seed", Default: 0})
	previewRect := previewCmd.Flag("", "rect", &argparse.Options{Help: "Rectangular batches without mosaic", Default: false})
	previewVal := previewCmd.Flag("", "val", &argparse.Options{Help: "Disable augmentation", Default: false})
	previewCache := previewCmd.Flag("", "cache-images", &argparse.Options{Help: "Cache resized images in memory", Default: false})
	previewProfile := previewCmd.Flag("", "profile", &argparse.Options{Help: "Log stage timings and throughput", Default: false})

	reduceCmd := parser.NewCommand("reduce", "Downsize every image of a folder into <folder>_reduced")
	reduceDir := reduceCmd.String("d", "dir", &argparse.Options{Help: "Image directory", Required: true})
	reduceImg := reduceCmd.Int("", "img", &argparse.Options{Help: "Longest side after reduction", Default: 1024})

	collectCmd := parser.NewCommand("collect", "Copy the images listed in a manifest into a folder")
	collectList := collectCmd.String("l", "list", &argparse.Options{Help: "Manifest file, one image per line", Required: true})
	collectOut := collectCmd.String("o", "output", &argparse.Options{Help: "Output directory (default: manifest path without extension)", Default: ""})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := util.NewLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case scanCmd.Happened():
		cfg := dataset.DefaultConfig()
		cfg.Path = *scanData
		cfg.Augment = false
		cfg.SingleClass = *scanSingle
		cfg.Progress = true
		err = scan(ctx, cfg, log)
	case previewCmd.Happened():
		cfg := dataset.DefaultConfig()
		cfg.Path = *previewData
		cfg.ImgSize = *previewImg
		cfg.BatchSize = *previewBatch
		cfg.Rect = *previewRect
		cfg.Augment = !*previewVal
		cfg.CacheImages = *previewCache
		cfg.Seed = uint64(*previewSeed)
		cfg.Progress = true
		if *previewHyp != "" {
			if cfg.Hyp, err = dataset.LoadHyp(*previewHyp); err != nil {
				break
			}
		}
		var prof *profiler.Profiler
		if *previewProfile {
			prof = profiler.New(profiler.Options{ReportInterval: 5 * time.Second}, log)
			prof.Start(ctx)
		}
		err = renderPreviews(ctx, cfg, *previewOut, *previewEpoch, *previewCount, prof, log)
		prof.Stop()
	case reduceCmd.Happened():
		err = reduce(*reduceDir, *reduceImg, log)
	case collectCmd.Happened():
		out := *collectOut
		if out == "" {
			out = strings.TrimSuffix(*collectList, filepath.Ext(*collectList))
		}
		err = collect(*collectList, out, log)
	}
	if err != nil {
		log.Fatalw("dataprep failed", "error", err)
	}
}

func scan(ctx context.Context, cfg dataset.Config, log *zap.SugaredLogger) error {
	ds, err := dataset.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ds.Close()

	st := ds.Stats()
	fmt.Printf("images: %d usable, labels: %d found, %d missing, %d empty, %d corrupt, %d duplicate\n",
		ds.Len(), st.Found, st.Missing, st.Empty, st.Corrupt, ds.Duplicates())
	return nil
}

var errEnough = errors.New("enough batches")

func renderPreviews(ctx context.Context, cfg dataset.Config, out string, epoch, count int, prof *profiler.Profiler, log *zap.SugaredLogger) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	ds, err := dataset.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ds.Close()

	loader := dataset.NewLoader(ds, dataset.LoaderOptions{Shuffle: true, Workers: cfg.Workers, Profiler: prof})

	n := 0
	opts := preview.DefaultOptions()
	err = loader.Each(ctx, epoch, func(b *dataset.Batch) error {
		path := filepath.Join(out, fmt.Sprintf("train_batch%d.png", n))
		if err := preview.PlotBatch(b, path, opts); err != nil {
			return err
		}
		log.Infow("wrote preview", "path", path, "batch", preview.Summary(b))

		if n++; n >= count {
			return errEnough
		}
		return nil
	})
	if errors.Is(err, errEnough) {
		return nil
	}
	return err
}

// reduce writes a copy of every image of dir whose longest side exceeds
// imgSize, shrunk to imgSize, into dir+"_reduced".
func reduce(dir string, imgSize int, log *zap.SugaredLogger) error {
	files, err := util.ListImageFiles(dir)
	if err != nil {
		return err
	}
	out := filepath.Clean(dir) + "_reduced"
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	bar := progressbar.Default(int64(len(files)), "Reducing")
	defer bar.Close()

	for _, f := range files {
		bar.Add(1)

		img := gocv.IMRead(f, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			log.Warnw("skipping unreadable image", "path", f)
			continue
		}

		h0, w0 := img.Rows(), img.Cols()
		if r := float64(imgSize) / float64(max(h0, w0)); r < 1 {
			small := gocv.NewMat()
			gocv.Resize(img, &small, image.Pt(int(float64(w0)*r), int(float64(h0)*r)), 0, 0, gocv.InterpolationArea)
			img.Close()
			img = small
		}

		dst := filepath.Join(out, filepath.Base(f))
		ok := gocv.IMWrite(dst, img)
		img.Close()
		if !ok {
			return errors.Errorf("failed to write %s", dst)
		}
	}
	log.Infow("reduced images", "count", len(files), "output", out)
	return nil
}

// collect copies every image listed in the manifest at list into out.
func collect(list, out string, log *zap.SugaredLogger) error {
	files, err := util.ReadManifest(list)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	for _, f := range files {
		if err := copyFile(f, filepath.Join(out, filepath.Base(f))); err != nil {
			return err
		}
		log.Debugw("copied", "path", f)
	}
	log.Infow("collected images", "count", len(files), "output", out)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open image")
	}
	defer in.Close()

	o, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create copy")
	}
	if _, err := io.Copy(o, in); err != nil {
		o.Close()
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return errors.Wrap(o.Close(), dst)
}
