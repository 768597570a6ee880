// Package sources reads inference inputs from image files, videos, webcams
// and network streams, and letterboxes every frame for a detector.
package sources

import (
	"context"
	"strconv"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Mode tells where a frame came from.
type Mode string

const (
	ModeImage  Mode = "image"
	ModeVideo  Mode = "video"
	ModeWebcam Mode = "webcam"
	ModeStream Mode = "stream"
)

var (
	// ErrNoMedia is returned when a path holds no image or video file.
	ErrNoMedia = errors.New("no images or videos found")
	// ErrCapture is returned when a camera or stream cannot be opened or read.
	ErrCapture = errors.New("capture failed")
)

// Frame is one letterboxed input.
type Frame struct {
	// Path is the file, device or stream URL.
	Path string
	// Image is the letterboxed frame as channel-first RGB.
	Image []uint8
	// Height and Width of Image.
	Height, Width int
	// Original is the frame as read, owned by the Frame.
	Original gocv.Mat
	// Letterbox maps boxes between Image and Original. Its Image field is
	// always empty.
	Letterbox images.LetterboxResult
	Mode      Mode
	// FrameIndex counts frames of a video or camera from 1. FrameCount is the
	// video length, or 0 when unknown.
	FrameIndex, FrameCount int
}

// Close releases the original frame.
func (f *Frame) Close() {
	f.Original.Close()
}

// Source yields frames until it is exhausted (io.EOF) or ctx is canceled.
type Source interface {
	Next(ctx context.Context) ([]*Frame, error)
	Close() error
}

// newFrame letterboxes img and takes ownership of it.
func newFrame(img gocv.Mat, opts images.LetterboxOptions, path string, mode Mode) (*Frame, error) {
	lb, err := images.Letterbox(img, opts)
	if err != nil {
		img.Close()
		return nil, errors.Wrap(err, path)
	}
	boxed := lb.Image
	defer boxed.Close()

	pixels, err := images.MatToCHW(boxed)
	if err != nil {
		img.Close()
		return nil, errors.Wrap(err, path)
	}

	// The Frame keeps the mapping only; the letterboxed Mat is released here.
	lb.Image = gocv.Mat{}
	return &Frame{
		Path:      path,
		Image:     pixels,
		Height:    boxed.Rows(),
		Width:     boxed.Cols(),
		Original:  img,
		Letterbox: lb,
		Mode:      mode,
	}, nil
}

// capture is the subset of a video capture the sources use.
type capture interface {
	read(m *gocv.Mat) bool
	// grab advances n frames without decoding them.
	grab(n int)
	opened() bool
	get(prop gocv.VideoCaptureProperties) float64
	set(prop gocv.VideoCaptureProperties, v float64)
	close()
}

type cvCapture struct {
	c *gocv.VideoCapture
}

func (c cvCapture) read(m *gocv.Mat) bool { return c.c.Read(m) }
func (c cvCapture) grab(n int)            { c.c.Grab(n) }
func (c cvCapture) opened() bool          { return c.c.IsOpened() }
func (c cvCapture) close()                { c.c.Close() }

func (c cvCapture) get(prop gocv.VideoCaptureProperties) float64 {
	return c.c.Get(prop)
}

func (c cvCapture) set(prop gocv.VideoCaptureProperties, v float64) {
	c.c.Set(prop, v)
}

// openCapture opens a device index ("0") or a file/URL.
var openCapture = func(source string) (capture, error) {
	var device any = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(ErrCapture, "failed to open %s: %v", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrCapture, "failed to open %s", source)
	}
	return cvCapture{c: vc}, nil
}
