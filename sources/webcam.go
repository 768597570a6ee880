package sources

import (
	"context"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// WebcamSkip is how many frames any pipe other than device 0 advances per read.
const WebcamSkip = 30

// Webcam reads from a local camera or an IP camera pipeline.
type Webcam struct {
	pipe   string
	mirror bool
	cap   capture
	opts  images.LetterboxOptions
	count int
}

// LoadWebcam opens pipe, which is either a device index such as "0" or a
// stream URL. Device 0 frames are mirrored. Every other pipe decodes only
// every WebcamSkip-th frame so that reads stay close to real time.
func LoadWebcam(pipe string, imgSize int) (*Webcam, error) {
	c, err := openCapture(pipe)
	if err != nil {
		return nil, err
	}
	return newWebcam(pipe, c, imgSize), nil
}

func newWebcam(pipe string, c capture, imgSize int) *Webcam {
	c.set(gocv.VideoCaptureBufferSize, 3)
	return &Webcam{
		pipe:   pipe,
		mirror: pipe == "0",
		cap:    c,
		opts:   images.DefaultLetterboxOptions(imgSize),
	}
}

// Next reads one frame. It never returns io.EOF; a failed read is an error.
func (w *Webcam) Next(ctx context.Context) ([]*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !w.mirror {
		w.cap.grab(WebcamSkip - 1)
	}

	img := gocv.NewMat()
	if !w.cap.read(&img) || img.Empty() {
		img.Close()
		return nil, errors.Wrapf(ErrCapture, "camera error %s", w.pipe)
	}
	if w.mirror {
		gocv.Flip(img, &img, 1)
	}
	w.count++

	f, err := newFrame(img, w.opts, w.pipe, ModeWebcam)
	if err != nil {
		return nil, err
	}
	f.FrameIndex = w.count
	return []*Frame{f}, nil
}

// Close releases the camera.
func (w *Webcam) Close() error {
	w.cap.close()
	return nil
}
