package preview

import (
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-dataprep/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidItem returns a size x size item of one RGB color.
func solidItem(size int, r, g, b uint8, labels ...[6]float32) *dataset.Item {
	plane := size * size
	pixels := make([]uint8, 3*plane)
	for i := 0; i < plane; i++ {
		pixels[i], pixels[plane+i], pixels[2*plane+i] = r, g, b
	}
	return &dataset.Item{Image: pixels, Height: size, Width: size, Labels: labels, Path: "img.png"}
}

func TestRenderBatch_Grid(t *testing.T) {
	batch, err := dataset.Collate([]*dataset.Item{
		solidItem(32, 0, 0, 200, [6]float32{0, 3, 0.5, 0.5, 0.5, 0.5}),
		solidItem(32, 0, 200, 0),
		solidItem(32, 200, 0, 0),
	})
	require.NoError(t, err)

	img, err := RenderBatch(batch, Options{MaxSize: 1920, MaxSubplots: 16, LineWidth: 2})
	require.NoError(t, err)

	// Three samples make a 2x2 grid.
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())

	tests := []struct {
		name string
		x, y int
		want [3]uint8
	}{
		{"first tile", 12, 28, [3]uint8{0, 0, 200}},
		{"second tile", 32 + 12, 28, [3]uint8{0, 200, 0}},
		{"third tile", 12, 32 + 28, [3]uint8{200, 0, 0}},
		{"empty slot stays white", 32 + 16, 32 + 16, [3]uint8{255, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := img.NRGBAAt(tt.x, tt.y)
			assert.Equal(t, tt.want, [3]uint8{c.R, c.G, c.B})
		})
	}

	// The box spans 8..24 on the first tile; its left edge is stroked.
	edge := img.NRGBAAt(8, 20)
	assert.NotEqual(t, [3]uint8{0, 0, 200}, [3]uint8{edge.R, edge.G, edge.B})
}

func TestRenderBatch_ShrinksLargeGrids(t *testing.T) {
	batch, err := dataset.Collate([]*dataset.Item{solidItem(64, 1, 2, 3), solidItem(64, 1, 2, 3)})
	require.NoError(t, err)

	img, err := RenderBatch(batch, Options{MaxSize: 64, MaxSubplots: 16})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds(), "two 64px tiles shrink to 32px")

	img, err = RenderBatch(batch, Options{MaxSize: 1920, MaxSubplots: 1})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds(), "only the first sample is drawn")
}

func TestRenderBatch_Errors(t *testing.T) {
	_, err := RenderBatch(nil, DefaultOptions())
	assert.Error(t, err)

	_, err = RenderBatch(&dataset.Batch{}, DefaultOptions())
	assert.Error(t, err)
}

func TestPlotBatch(t *testing.T) {
	batch, err := dataset.Collate([]*dataset.Item{solidItem(32, 10, 20, 30, [6]float32{0, 1, 0.5, 0.5, 0.2, 0.2})})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "batch.png")
	require.NoError(t, PlotBatch(batch, path, DefaultOptions()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "person", className(0, []string{"person"}))
	assert.Equal(t, "4", className(4, []string{"person"}))
}
