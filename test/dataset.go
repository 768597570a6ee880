package test

import (
	"encoding/binary"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// ImageSpec describes one synthetic image of a DatasetFixture.
type ImageSpec struct {
	// Name is the file name under images/, e.g. "0001.png".
	Name string
	// Width and Height of the written image.
	Width, Height int
	// Color fills the image.
	Color color.RGBA
	// Labels are the lines of the label file. A nil slice writes no label
	// file at all; an empty non-nil slice writes an empty file.
	Labels []string
	// Orientation, when non-zero, embeds an EXIF orientation tag. Only JPEG
	// names support it.
	Orientation uint16
}

// DatasetFixture is a dataset written to a temporary directory with the
// <root>/images and <root>/labels layout and a <root>/train.txt manifest.
type DatasetFixture struct {
	Root     string
	Manifest string
	Images   []string
	Labels   []string
}

// NewDatasetFixture writes specs to t.TempDir().
//
// @example
//
//	fx := NewDatasetFixture(t, []ImageSpec{
//	    {Name: "a.png", Width: 64, Height: 48, Labels: []string{"0 0.5 0.5 0.2 0.2"}},
//	})
func NewDatasetFixture(t testing.TB, specs []ImageSpec) *DatasetFixture {
	t.Helper()

	root := t.TempDir()
	fx := &DatasetFixture{Root: root, Manifest: filepath.Join(root, "train.txt")}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "labels"), 0o755))

	var manifest strings.Builder
	for _, spec := range specs {
		imgPath := filepath.Join(root, "images", spec.Name)
		WriteImage(t, imgPath, spec.Width, spec.Height, spec.Color, spec.Orientation)

		labelPath := filepath.Join(root, "labels", strings.TrimSuffix(spec.Name, filepath.Ext(spec.Name))+".txt")
		if spec.Labels != nil {
			content := strings.Join(spec.Labels, "\n")
			require.NoError(t, os.WriteFile(labelPath, []byte(content), 0o644))
		}

		fx.Images = append(fx.Images, imgPath)
		fx.Labels = append(fx.Labels, labelPath)
		manifest.WriteString("./images/" + spec.Name + "\n")
	}
	require.NoError(t, os.WriteFile(fx.Manifest, []byte(manifest.String()), 0o644))

	return fx
}

// WriteImage writes a uniform width x height image to path. The format
// follows the extension. A non-zero orientation adds an EXIF APP1 segment to
// a JPEG.
func WriteImage(t testing.TB, path string, width, height int, c color.RGBA, orientation uint16) {
	t.Helper()

	img := NewMockFrameGenerator(width, height).GenerateStaticFrame(c)
	defer img.Close()

	if orientation == 0 {
		require.True(t, gocv.IMWrite(path, img), "failed to write %s", path)
		return
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()

	data := WithOrientation(buf.GetBytes(), orientation)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// WithOrientation inserts a minimal EXIF APP1 segment carrying only the
// Orientation tag right after the JPEG start-of-image marker.
func WithOrientation(jpeg []byte, orientation uint16) []byte {
	le := binary.LittleEndian

	tiff := make([]byte, 0, 26)
	tiff = append(tiff, 'I', 'I', 0x2a, 0x00)
	tiff = le.AppendUint32(tiff, 8) // IFD0 offset
	tiff = le.AppendUint16(tiff, 1) // entry count
	tiff = le.AppendUint16(tiff, 0x0112)
	tiff = le.AppendUint16(tiff, 3) // SHORT
	tiff = le.AppendUint32(tiff, 1)
	tiff = le.AppendUint16(tiff, orientation)
	tiff = le.AppendUint16(tiff, 0)
	tiff = le.AppendUint32(tiff, 0) // no IFD1

	payload := append([]byte("Exif\x00\x00"), tiff...)

	out := make([]byte, 0, len(jpeg)+len(payload)+4)
	out = append(out, jpeg[:2]...)
	out = append(out, 0xff, 0xe1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	out = append(out, jpeg[2:]...)
	return out
}
