// Command sources displays frames from images, videos, cameras or streams as
// the inference sources yield them. Press q to quit.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/nvr-ai/go-dataprep/sources"
	"github.com/nvr-ai/go-dataprep/util"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	parser := argparse.NewParser("sources", "View inference sources")
	inputs := parser.StringList("s", "source", &argparse.Options{Help: "Image/video path, glob, directory, device index, URL or streams file (repeatable)", Required: true})
	kind := parser.Selector("k", "kind", []string{"auto", "files", "webcam", "streams"}, &argparse.Options{Help: "Source kind", Default: "auto"})
	imgSize := parser.Int("", "img", &argparse.Options{Help: "Letterbox size", Default: 640})
	show := parser.Flag("", "show", &argparse.Options{Help: "Display frames in a window", Default: false})
	debug := parser.Flag("", "debug", &argparse.Options{Help: "Verbose development logging", Default: false})
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	src, err := open(ctx, *kind, *inputs, *imgSize, log)
	if err != nil {
		log.Fatalw("failed to open source", "source", *inputs, "error", err)
	}
	defer src.Close()

	var window *gocv.Window
	if *show {
		window = gocv.NewWindow("sources")
		defer window.Close()
	}

	// FPS tracking
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	for {
		frames, err := src.Next(ctx)
		if err == io.EOF || ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Fatalw("failed to read frame", "error", err)
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		for i, f := range frames {
			log.Debugw("frame", "path", f.Path, "mode", f.Mode, "frame", f.FrameIndex, "frames", f.FrameCount,
				"shape", fmt.Sprintf("%dx%d", f.Width, f.Height), "fps", fps)

			if window != nil && i == 0 {
				// Show the letterboxed input, as the detector sees it.
				view, err := gocv.ImageToMatRGB(images.CHWToImage(f.Image, f.Height, f.Width))
				if err == nil {
					gocv.PutText(&view, fmt.Sprintf("%s %.1f FPS", f.Mode, fps), image.Pt(8, 24),
						gocv.FontHersheyPlain, 1.2, color.RGBA{0, 255, 0, 0}, 2)
					window.IMShow(view)
					view.Close()
				}
			}
			f.Close()
		}

		if window != nil && window.WaitKey(1) == 'q' {
			cancel()
		}
	}
}

func open(ctx context.Context, kind string, inputs []string, imgSize int, log *zap.SugaredLogger) (sources.Source, error) {
	if kind == "auto" {
		kind = detect(inputs)
	}
	switch kind {
	case "webcam":
		return sources.LoadWebcam(inputs[0], imgSize)
	case "streams":
		return sources.LoadStreams(ctx, inputs, imgSize, log)
	default:
		return sources.LoadImages(inputs[0], imgSize, log)
	}
}

// detect picks streams for several inputs or a .txt list, webcam for a
// device index or URL, and files otherwise.
func detect(inputs []string) string {
	first := inputs[0]
	switch {
	case len(inputs) > 1 || strings.HasSuffix(first, ".txt"):
		return "streams"
	case isDevice(first) || strings.Contains(first, "://"):
		return "webcam"
	}
	return "files"
}

func isDevice(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
