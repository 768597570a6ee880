package sources

import (
	"bufio"
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	// StreamReadEvery is how many grabbed frames pass per decoded frame.
	StreamReadEvery = 4
	// StreamPoll is the producer sleep between grabs.
	StreamPoll = 10 * time.Millisecond
)

// frameSlot holds the most recent frame of a producer. Put replaces it and
// Snapshot copies it, so a consumer never waits for the next frame.
type frameSlot struct {
	mu     sync.Mutex
	latest *gocv.Mat
	seq    uint64
}

// Put stores m and releases the frame it replaces. The slot owns m.
func (s *frameSlot) Put(m gocv.Mat) {
	s.mu.Lock()
	old := s.latest
	s.latest = &m
	s.seq++
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Snapshot returns a copy of the latest frame and its sequence number, or
// false when nothing has been stored yet.
func (s *frameSlot) Snapshot() (gocv.Mat, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return gocv.Mat{}, 0, false
	}
	return s.latest.Clone(), s.seq, true
}

// Close releases the stored frame.
func (s *frameSlot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil {
		s.latest.Close()
		s.latest = nil
	}
}

type stream struct {
	source string
	cap    capture
	slot   frameSlot
	width  int
	height int
	fps    float64
}

// Streams reads several live sources at once. Each source has a producer
// goroutine that keeps only its newest frame.
type Streams struct {
	streams []*stream
	imgSize int
	rect    bool
	log     *zap.SugaredLogger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	count   int
}

// ReadSourcesFile reads one stream source per non-blank line.
func ReadSourcesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sources file")
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, errors.Wrap(sc.Err(), path)
}

// LoadStreams opens every source and starts its producer. A single source
// naming an existing file is read as a list of sources.
//
// Arguments:
// - ctx: Stops the producers when canceled.
// - sources: Device indices, files or stream URLs.
// - imgSize: The letterbox target size.
// - log: Logger for stream properties.
//
// Returns:
// - The running streams, each holding its first frame.
// - error wrapping ErrCapture if a source cannot be opened or read.
func LoadStreams(ctx context.Context, sources []string, imgSize int, log *zap.SugaredLogger) (*Streams, error) {
	if len(sources) == 1 {
		if info, err := os.Stat(sources[0]); err == nil && !info.IsDir() && !images.IsVideoFile(sources[0]) {
			list, err := ReadSourcesFile(sources[0])
			if err != nil {
				return nil, err
			}
			sources = list
		}
	}
	if len(sources) == 0 {
		return nil, errors.Wrap(ErrNoMedia, "no stream sources")
	}

	caps := make([]capture, 0, len(sources))
	for _, src := range sources {
		c, err := openCapture(src)
		if err != nil {
			for _, o := range caps {
				o.close()
			}
			return nil, err
		}
		caps = append(caps, c)
	}
	return newStreams(ctx, sources, caps, imgSize, log)
}

func newStreams(ctx context.Context, sources []string, caps []capture, imgSize int, log *zap.SugaredLogger) (*Streams, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Streams{imgSize: imgSize, log: log, cancel: cancel}

	for i, src := range sources {
		st := &stream{
			source: src,
			cap:    caps[i],
			width:  int(caps[i].get(gocv.VideoCaptureFrameWidth)),
			height: int(caps[i].get(gocv.VideoCaptureFrameHeight)),
			fps:    math.Mod(caps[i].get(gocv.VideoCaptureFPS), 100),
		}
		s.streams = append(s.streams, st)

		first := gocv.NewMat()
		if !st.cap.read(&first) || first.Empty() {
			first.Close()
			s.Close()
			for _, c := range caps[i+1:] {
				c.close()
			}
			return nil, errors.Wrapf(ErrCapture, "failed to read first frame of %s", src)
		}
		st.slot.Put(first)
		log.Infow("stream opened", "index", i+1, "total", len(sources), "source", src,
			"width", st.width, "height", st.height, "fps", st.fps)

		s.wg.Add(1)
		go s.update(ctx, st)
	}

	rect, err := s.sameShapes()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.rect = rect
	if !rect {
		log.Warnw("stream shapes differ; set equal resolutions for rectangular inference")
	}
	return s, nil
}

// sameShapes reports whether every first frame letterboxes to one shape.
func (s *Streams) sameShapes() (bool, error) {
	var shape images.Shape
	for i, st := range s.streams {
		img, _, ok := st.slot.Snapshot()
		if !ok {
			return false, errors.Wrapf(ErrCapture, "no frame from %s", st.source)
		}
		lb, err := images.Letterbox(img, images.DefaultLetterboxOptions(s.imgSize))
		img.Close()
		if err != nil {
			return false, errors.Wrap(err, st.source)
		}
		got := images.Shape{H: lb.Image.Rows(), W: lb.Image.Cols()}
		lb.Image.Close()

		if i > 0 && got != shape {
			return false, nil
		}
		shape = got
	}
	return true, nil
}

func (s *Streams) update(ctx context.Context, st *stream) {
	defer s.wg.Done()

	tick := time.NewTicker(StreamPoll)
	defer tick.Stop()

	for st.cap.opened() {
		st.cap.grab(StreamReadEvery - 1)

		img := gocv.NewMat()
		if st.cap.read(&img) && !img.Empty() {
			st.slot.Put(img)
		} else {
			img.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
	s.log.Warnw("stream closed", "source", st.source)
}

// Rect reports whether all streams share a letterbox shape, in which case
// frames are padded to the stride instead of the full square.
func (s *Streams) Rect() bool { return s.rect }

// Len returns the number of streams.
func (s *Streams) Len() int { return len(s.streams) }

// Next returns the latest frame of every stream. It does not wait for new
// frames, so consecutive calls may repeat a frame.
func (s *Streams) Next(ctx context.Context) ([]*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.count++

	opts := images.DefaultLetterboxOptions(s.imgSize)
	opts.Auto = s.rect

	frames := make([]*Frame, 0, len(s.streams))
	for _, st := range s.streams {
		img, seq, ok := st.slot.Snapshot()
		if !ok {
			closeFrames(frames)
			return nil, errors.Wrapf(ErrCapture, "no frame from %s", st.source)
		}
		f, err := newFrame(img, opts, st.source, ModeStream)
		if err != nil {
			closeFrames(frames)
			return nil, err
		}
		f.FrameIndex = int(seq)
		frames = append(frames, f)
	}
	return frames, nil
}

// Close stops the producers and releases every capture.
func (s *Streams) Close() error {
	s.cancel()
	s.wg.Wait()
	for _, st := range s.streams {
		st.cap.close()
		st.slot.Close()
	}
	return nil
}

func closeFrames(frames []*Frame) {
	for _, f := range frames {
		f.Close()
	}
}
