package sources

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/nvr-ai/go-dataprep/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Images iterates over image files and then over the frames of every video
// file under a path.
type Images struct {
	files   []string
	nvideo  int
	opts    images.LetterboxOptions
	log     *zap.SugaredLogger
	count   int
	video   capture
	frame   int
	nframes int
}

// LoadImages collects media from a glob pattern, a directory or a single
// file. Images are yielded before videos, each group in sorted order.
//
// Arguments:
// - path: A glob ("data/*.jpg"), a directory or a file.
// - imgSize: The letterbox target size.
// - log: Logger for per-file progress.
//
// Returns:
// - The source, positioned at the first file.
// - error wrapping util.ErrNotExist or ErrNoMedia.
func LoadImages(path string, imgSize int, log *zap.SugaredLogger) (*Images, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	var files []string
	switch info, statErr := os.Stat(p); {
	case strings.ContainsAny(p, "*?["):
		files, err = filepath.Glob(p)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
	case statErr == nil && info.IsDir():
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		for _, e := range entries {
			files = append(files, filepath.Join(p, e.Name()))
		}
	case statErr == nil:
		files = []string{p}
	default:
		return nil, errors.Wrap(util.ErrNotExist, path)
	}
	sort.Strings(files)

	var imgs, videos []string
	for _, f := range files {
		switch {
		case images.IsImageFile(f):
			imgs = append(imgs, f)
		case images.IsVideoFile(f):
			videos = append(videos, f)
		}
	}
	if len(imgs)+len(videos) == 0 {
		return nil, errors.Wrapf(ErrNoMedia, "%s (images: %v, videos: %v)", path, images.ImageExtensions, images.VideoExtensions)
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Images{
		files:  append(imgs, videos...),
		nvideo: len(videos),
		opts:   images.DefaultLetterboxOptions(imgSize),
		log:    log,
	}, nil
}

// Len returns the number of files.
func (s *Images) Len() int { return len(s.files) }

// Next returns the next image or video frame, or io.EOF after the last one.
func (s *Images) Next(ctx context.Context) ([]*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.count >= len(s.files) {
			return nil, io.EOF
		}

		path := s.files[s.count]
		if s.count < len(s.files)-s.nvideo {
			s.count++
			img := gocv.IMRead(path, gocv.IMReadColor)
			if img.Empty() {
				img.Close()
				return nil, errors.Wrap(images.ErrImageNotFound, path)
			}
			s.log.Debugw("image", "index", s.count, "total", len(s.files), "path", path)

			f, err := newFrame(img, s.opts, path, ModeImage)
			if err != nil {
				return nil, err
			}
			return []*Frame{f}, nil
		}

		if s.video == nil {
			if err := s.openVideo(path); err != nil {
				return nil, err
			}
		}

		img := gocv.NewMat()
		if !s.video.read(&img) || img.Empty() {
			img.Close()
			s.closeVideo()
			s.count++
			continue
		}
		s.frame++
		s.log.Debugw("video frame", "index", s.count+1, "total", len(s.files), "frame", s.frame, "frames", s.nframes, "path", path)

		f, err := newFrame(img, s.opts, path, ModeVideo)
		if err != nil {
			return nil, err
		}
		f.FrameIndex, f.FrameCount = s.frame, s.nframes
		return []*Frame{f}, nil
	}
}

func (s *Images) openVideo(path string) error {
	c, err := openCapture(path)
	if err != nil {
		return err
	}
	s.video = c
	s.frame = 0
	s.nframes = int(c.get(gocv.VideoCaptureFrameCount))
	return nil
}

func (s *Images) closeVideo() {
	if s.video != nil {
		s.video.close()
		s.video = nil
	}
}

// Close releases an open video.
func (s *Images) Close() error {
	s.closeVideo()
	return nil
}
