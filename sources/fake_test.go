package sources

import (
	"image/color"
	"sync"
	"testing"

	"github.com/nvr-ai/go-dataprep/test"
	"gocv.io/x/gocv"
)

// fakeCapture yields uniform frames whose blue channel is the frame number.
type fakeCapture struct {
	mu     sync.Mutex
	gen    *test.MockFrameGenerator
	frame  func(n int) gocv.Mat
	limit  int
	reads  int
	grabs  int
	closed bool
	props  map[gocv.VideoCaptureProperties]float64
}

func newFakeCapture(width, height, limit int) *fakeCapture {
	c := &fakeCapture{
		gen:   test.NewMockFrameGenerator(width, height),
		limit: limit,
		props: map[gocv.VideoCaptureProperties]float64{
			gocv.VideoCaptureFrameWidth:  float64(width),
			gocv.VideoCaptureFrameHeight: float64(height),
			gocv.VideoCaptureFPS:         30,
			gocv.VideoCaptureFrameCount:  float64(limit),
		},
	}
	c.frame = func(n int) gocv.Mat {
		return c.gen.GenerateStaticFrame(color.RGBA{B: uint8(n % 256)})
	}
	return c
}

func (c *fakeCapture) read(m *gocv.Mat) bool {
	c.mu.Lock()
	if c.closed || (c.limit > 0 && c.reads >= c.limit) {
		c.mu.Unlock()
		return false
	}
	c.reads++
	n := c.reads
	c.mu.Unlock()

	img := c.frame(n)
	defer img.Close()
	img.CopyTo(m)
	return true
}

func (c *fakeCapture) grab(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grabs += n
}

func (c *fakeCapture) opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeCapture) get(prop gocv.VideoCaptureProperties) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props[prop]
}

func (c *fakeCapture) set(prop gocv.VideoCaptureProperties, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[prop] = v
}

func (c *fakeCapture) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeCapture) stats() (reads, grabs int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads, c.grabs, c.closed
}

// useCaptures makes openCapture return the given fakes keyed by source.
func useCaptures(t *testing.T, caps map[string]*fakeCapture) {
	t.Helper()
	prev := openCapture
	openCapture = func(source string) (capture, error) {
		c, ok := caps[source]
		if !ok {
			return nil, ErrCapture
		}
		return c, nil
	}
	t.Cleanup(func() { openCapture = prev })
}
