package labels

import (
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
)

// MinImageSide is the smallest accepted image width and height.
const MinImageSide = 10

// ReadShape reads the displayed size of an image from its header without
// decoding the pixels. EXIF orientations 6 and 8 (rotated by 90 degrees) swap
// width and height.
//
// Arguments:
// - path: The image file.
//
// Returns:
// - The shape as displayed.
// - error if the header cannot be decoded or the image is smaller than
// MinImageSide on either axis.
func ReadShape(path string) (images.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return images.Shape{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return images.Shape{}, errors.Wrapf(err, "failed to decode header of %s", path)
	}

	shape := images.Shape{H: cfg.Height, W: cfg.Width}
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		switch Orientation(f) {
		case 6, 8:
			shape.H, shape.W = shape.W, shape.H
		}
	}

	if shape.H < MinImageSide || shape.W < MinImageSide {
		return images.Shape{}, errors.Errorf("%s image %dx%d is smaller than %d pixels", format, shape.W, shape.H, MinImageSide)
	}
	return shape, nil
}

// Orientation returns the EXIF orientation tag found in r, or 1 (identity)
// when there is no readable EXIF data.
func Orientation(r io.Reader) int {
	raw, err := exif.SearchAndExtractExifWithReader(r)
	if err != nil {
		return 1
	}

	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return 1
	}

	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		if v, ok := tag.Value.([]uint16); ok && len(v) > 0 {
			return int(v[0])
		}
	}
	return 1
}
