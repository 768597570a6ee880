package dataset

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-dataprep/augment"
	"github.com/nvr-ai/go-dataprep/images"
	"github.com/nvr-ai/go-dataprep/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"
)

var tileColors = []color.RGBA{
	{R: 200, G: 20, B: 20},
	{R: 20, G: 200, B: 20},
	{R: 20, G: 20, B: 200},
	{R: 200, G: 200, B: 20},
}

func testConfig(path string) Config {
	cfg := DefaultConfig()
	cfg.Path = []string{path}
	cfg.ImgSize = 64
	cfg.BatchSize = 2
	cfg.Workers = 2
	cfg.Seed = 1
	return cfg
}

func zeroHyp() Hyp {
	return Hyp{}
}

func mosaicFixture(t *testing.T) *test.DatasetFixture {
	return test.NewDatasetFixture(t, []test.ImageSpec{
		{Name: "0001.png", Width: 64, Height: 64, Color: tileColors[0], Labels: []string{"1 0.5 0.5 0.2 0.2"}},
		{Name: "0002.png", Width: 64, Height: 64, Color: tileColors[1]},
		{Name: "0003.png", Width: 64, Height: 64, Color: tileColors[2]},
		{Name: "0004.png", Width: 64, Height: 64, Color: tileColors[3]},
	})
}

func bgrAt(m gocv.Mat, row, col int) [3]uint8 {
	v := m.GetVecbAt(row, col)
	return [3]uint8{v[0], v[1], v[2]}
}

func bgr(c color.RGBA) [3]uint8 {
	return [3]uint8{c.B, c.G, c.R}
}

func TestLoadMosaic_Scenario(t *testing.T) {
	fx := mosaicFixture(t)
	cfg := testConfig(fx.Manifest)
	cfg.Hyp = zeroHyp()

	ds, err := New(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer ds.Close()
	require.Equal(t, 4, ds.Len())

	t.Run("composition", func(t *testing.T) {
		var tiles [4]mosaicTile
		for i := range tiles {
			img, _, _, err := ds.loadImage(i)
			require.NoError(t, err)
			defer img.Close()
			tiles[i] = mosaicTile{img: img, labels: ds.Labels(i)}
		}

		canvas, targets := composeMosaic(tiles, 64, 64, 64)
		defer canvas.Close()

		assert.Equal(t, 128, canvas.Rows())
		require.Len(t, targets, 1)
		assert.Equal(t, float32(1), targets[0].Class)
		assert.InDelta(t, 25.6, targets[0].Box.X1, 1e-3)
		assert.InDelta(t, 25.6, targets[0].Box.Y1, 1e-3)
		assert.InDelta(t, 38.4, targets[0].Box.X2, 1e-3)
		assert.InDelta(t, 38.4, targets[0].Box.Y2, 1e-3)

		for i, c := range tileColors {
			a, _ := mosaicPlacement(i, 64, 64, 64, 64, 64)
			assert.Equal(t, bgr(c), bgrAt(canvas, a.Min.Y+1, a.Min.X+1), "quadrant %d", i)
		}
	})

	t.Run("after perspective", func(t *testing.T) {
		out, targets, err := ds.loadMosaic(ds.Rand(0, 0), [4]int{0, 1, 2, 3})
		require.NoError(t, err)
		defer out.Close()

		assert.Equal(t, 64, out.Rows())
		assert.Equal(t, 64, out.Cols())

		// The crop recenters on the canvas center: (32, 32) to (96, 96).
		require.Len(t, targets, 1)
		assert.Equal(t, float32(1), targets[0].Class)
		assert.InDelta(t, 0, targets[0].Box.X1, 1e-3)
		assert.InDelta(t, 0, targets[0].Box.Y1, 1e-3)
		assert.InDelta(t, 6.4, targets[0].Box.X2, 1e-3)
		assert.InDelta(t, 6.4, targets[0].Box.Y2, 1e-3)

		assert.Equal(t, bgr(tileColors[0]), bgrAt(out, 0, 0))
		assert.Equal(t, bgr(tileColors[1]), bgrAt(out, 0, 63))
		assert.Equal(t, bgr(tileColors[2]), bgrAt(out, 63, 0))
		assert.Equal(t, bgr(tileColors[3]), bgrAt(out, 63, 63))
	})
}

func TestComposeMosaic_QuadrantConsistency(t *testing.T) {
	gen := []image.Point{{X: 64, Y: 40}, {X: 30, Y: 64}, {X: 64, Y: 64}, {X: 50, Y: 20}}
	full := []Label{{Class: 2, Box: images.XYWH{CX: 0.5, CY: 0.5, W: 1, H: 1}}}

	centers := []image.Point{{X: 64, Y: 64}, {X: 32, Y: 32}, {X: 95, Y: 40}, {X: 40, Y: 95}}
	for _, c := range centers {
		var tiles [4]mosaicTile
		for i, sz := range gen {
			tiles[i] = mosaicTile{img: test.NewMockFrameGenerator(sz.X, sz.Y).GenerateStaticFrame(tileColors[i]), labels: full}
		}

		canvas, targets := composeMosaic(tiles, 64, c.X, c.Y)
		require.Len(t, targets, 4)
		for i, tg := range targets {
			a, b := mosaicPlacement(i, 64, c.X, c.Y, gen[i].X, gen[i].Y)
			assert.Equal(t, a.Size(), b.Size(), "center %v quadrant %d", c, i)

			// A box covering the whole tile covers exactly the occupied rectangle.
			assert.InDelta(t, a.Min.X, tg.Box.X1, 1e-3, "center %v quadrant %d", c, i)
			assert.InDelta(t, a.Min.Y, tg.Box.Y1, 1e-3, "center %v quadrant %d", c, i)
			assert.InDelta(t, a.Max.X, tg.Box.X2, 1e-3, "center %v quadrant %d", c, i)
			assert.InDelta(t, a.Max.Y, tg.Box.Y2, 1e-3, "center %v quadrant %d", c, i)

			if !a.Empty() {
				assert.Equal(t, bgr(tileColors[i]), bgrAt(canvas, a.Min.Y, a.Min.X))
				assert.Equal(t, bgr(tileColors[i]), bgrAt(canvas, a.Max.Y-1, a.Max.X-1))
			}
		}

		canvas.Close()
		for _, tl := range tiles {
			tl.img.Close()
		}
	}
}

func TestBatchShapes(t *testing.T) {
	mixed := []images.Shape{{H: 320, W: 640}, {H: 640, W: 640}, {H: 640, W: 320}}

	t.Run("mixed aspect ratios in one batch", func(t *testing.T) {
		order, shapes := BatchShapes(mixed, 3, 640, 32, 0.5)
		assert.Equal(t, []int{0, 1, 2}, order)
		require.Len(t, shapes, 1)
		assert.Equal(t, image.Pt(672, 672), shapes[0])
		assert.NotEqual(t, image.Pt(640, 640), shapes[0])
	})

	t.Run("mixed aspect ratios without padding stay square", func(t *testing.T) {
		_, shapes := BatchShapes(mixed, 3, 640, 32, 0)
		assert.Equal(t, []image.Point{{X: 640, Y: 640}}, shapes)
	})

	t.Run("one image per batch", func(t *testing.T) {
		order, shapes := BatchShapes([]images.Shape{{H: 640, W: 320}, {H: 320, W: 640}, {H: 640, W: 640}}, 1, 640, 32, 0)
		assert.Equal(t, []int{1, 2, 0}, order, "sorted by height/width")
		assert.Equal(t, []image.Point{{X: 640, Y: 320}, {X: 640, Y: 640}, {X: 320, Y: 640}}, shapes)
	})

	t.Run("wide batch uses the tallest member", func(t *testing.T) {
		_, shapes := BatchShapes([]images.Shape{{H: 300, W: 600}, {H: 400, W: 640}}, 2, 640, 32, 0)
		// max h/w = 0.625 -> 400px
		assert.Equal(t, []image.Point{{X: 640, Y: 416}}, shapes)
	})

	t.Run("partial last batch", func(t *testing.T) {
		_, shapes := BatchShapes(mixed, 2, 640, 32, 0)
		assert.Len(t, shapes, 2)
	})
}

func TestNew_Rect(t *testing.T) {
	fx := test.NewDatasetFixture(t, []test.ImageSpec{
		{Name: "tall.png", Width: 32, Height: 64, Labels: []string{"0 0.5 0.5 0.5 0.5"}},
		{Name: "wide.png", Width: 64, Height: 32, Labels: []string{"0 0.5 0.5 0.5 0.5"}},
		{Name: "square.png", Width: 64, Height: 64, Labels: []string{"0 0.5 0.5 0.5 0.5"}},
	})
	cfg := testConfig(fx.Manifest)
	cfg.Rect = true
	cfg.Augment = false
	cfg.BatchSize = 1

	ds, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{fx.Images[1], fx.Images[2], fx.Images[0]}, ds.Paths())
	expected := []image.Point{{X: 64, Y: 32}, {X: 64, Y: 64}, {X: 32, Y: 64}}
	for i, e := range expected {
		shape, ok := ds.BatchShape(i)
		require.True(t, ok)
		assert.Equal(t, e, shape)

		item, err := ds.Get(i, 0)
		require.NoError(t, err)
		assert.Equal(t, e.X, item.Width)
		assert.Equal(t, e.Y, item.Height)
	}
}

func TestGet_Validation(t *testing.T) {
	fx := test.NewDatasetFixture(t, []test.ImageSpec{
		{Name: "a.png", Width: 64, Height: 48, Color: tileColors[0], Labels: []string{"3 0.5 0.5 0.2 0.2"}},
	})
	cfg := testConfig(fx.Manifest)
	cfg.Augment = false

	ds, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	item, err := ds.Get(0, 0)
	require.NoError(t, err)

	assert.Equal(t, 64, item.Height)
	assert.Equal(t, 64, item.Width)
	assert.Len(t, item.Image, 3*64*64)
	assert.Equal(t, fx.Images[0], item.Path)
	assert.Equal(t, &ShapeInfo{H0: 48, W0: 64, RatioH: 1, RatioW: 1, PadX: 0, PadY: 8}, item.Shapes)

	require.Len(t, item.Labels, 1)
	l := item.Labels[0]
	assert.Equal(t, float32(0), l[0])
	assert.Equal(t, float32(3), l[1])
	assert.InDelta(t, 0.5, l[2], 1e-5)
	assert.InDelta(t, 0.5, l[3], 1e-5)
	assert.InDelta(t, 0.2, l[4], 1e-5)
	assert.InDelta(t, 0.15, l[5], 1e-5)

	// Red in CHW RGB: the center of the first plane.
	assert.Equal(t, uint8(200), item.Image[32*64+32])

	_, err = ds.Get(1, 0)
	assert.Error(t, err)
}

func TestGet_AugmentDeterministic(t *testing.T) {
	fx := mosaicFixture(t)
	cfg := testConfig(fx.Manifest)
	cfg.Hyp.Mixup = 0.5
	cfg.Hyp.FlipUD = 0.5
	cfg.Hyp.Degrees = 10

	ds, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	for index := 0; index < ds.Len(); index++ {
		a, err := ds.Get(index, 2)
		require.NoError(t, err)
		b, err := ds.Get(index, 2)
		require.NoError(t, err)

		assert.Equal(t, a, b, "sample %d", index)
		assert.Equal(t, 64, a.Height)
		assert.Equal(t, 64, a.Width)
		assert.Nil(t, a.Shapes)
		for _, l := range a.Labels {
			for _, v := range l[2:] {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(1))
			}
		}
	}
}

func TestGet_CachedImagesMatchDisk(t *testing.T) {
	fx := mosaicFixture(t)
	cfg := testConfig(fx.Manifest)

	plain, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	cfg.CacheImages = true
	cached, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer cached.Close()

	for i := 0; i < plain.Len(); i++ {
		a, err := plain.Get(i, 1)
		require.NoError(t, err)
		b, err := cached.Get(i, 1)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := New(context.Background(), testConfig(filepath.Join(t.TempDir(), "none")), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotExist))
	})

	t.Run("no images", func(t *testing.T) {
		_, err := New(context.Background(), testConfig(t.TempDir()), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoImages))
	})

	t.Run("only unusable images", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jpg"), []byte("garbage"), 0o644))
		_, err := New(context.Background(), testConfig(dir), nil)
		assert.True(t, errors.Is(err, ErrNoImages))
	})

	for _, tt := range []struct {
		name  string
		label string
	}{
		{"wrong column count", "0 0.5 0.5 0.2"},
		{"negative value", "0 -0.5 0.5 0.2 0.2"},
		{"coordinate above one", "0 0.5 1.5 0.2 0.2"},
		{"nan value", "0 nan 0.5 0.2 0.2"},
		{"infinite coordinate", "0 0.5 +Inf 0.2 0.2"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			fx := test.NewDatasetFixture(t, []test.ImageSpec{
				{Name: "a.png", Width: 32, Height: 32, Labels: []string{tt.label}},
			})
			_, err := New(context.Background(), testConfig(fx.Manifest), nil)
			var labelErr *LabelError
			require.True(t, errors.As(err, &labelErr), "got %v", err)
			assert.Equal(t, fx.Labels[0], labelErr.Path)
		})
	}

	t.Run("no labels", func(t *testing.T) {
		fx := test.NewDatasetFixture(t, []test.ImageSpec{{Name: "a.png", Width: 32, Height: 32}})

		_, err := New(context.Background(), testConfig(fx.Manifest), nil)
		assert.True(t, errors.Is(err, ErrNoLabels))

		cfg := testConfig(fx.Manifest)
		cfg.Augment = false
		ds, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, ds.Len())
	})
}

func TestNew_DropsUnusableAndCollapsesClasses(t *testing.T) {
	fx := test.NewDatasetFixture(t, []test.ImageSpec{
		{Name: "a.png", Width: 32, Height: 32, Labels: []string{"4 0.5 0.5 0.2 0.2", "4 0.5 0.5 0.2 0.2"}},
		{Name: "b.png", Width: 32, Height: 32, Labels: []string{"7 0.1 0.1 0.1 0.1"}},
	})
	require.NoError(t, os.WriteFile(filepath.Join(fx.Root, "images", "c.jpg"), []byte("garbage"), 0o644))

	cfg := testConfig(filepath.Join(fx.Root, "images"))
	cfg.SingleClass = true

	ds, err := New(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 1, ds.Stats().Corrupt)
	assert.Equal(t, 1, ds.Duplicates())
	for i := 0; i < ds.Len(); i++ {
		for _, l := range ds.Labels(i) {
			assert.Equal(t, float32(0), l.Class)
		}
	}
}

func TestCollate(t *testing.T) {
	items := []*Item{
		{Image: make([]uint8, 12), Height: 2, Width: 2, Path: "a", Labels: [][6]float32{{9, 1, .5, .5, .1, .1}, {9, 2, .2, .2, .1, .1}}},
		{Image: make([]uint8, 12), Height: 2, Width: 2, Path: "b"},
		{Image: make([]uint8, 12), Height: 2, Width: 2, Path: "c", Labels: [][6]float32{{0, 3, .4, .4, .2, .2}}, Shapes: &ShapeInfo{H0: 4}},
	}
	items[2].Image[0] = 7

	b, err := Collate(items)
	require.NoError(t, err)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{3, 3, 2, 2}, []int(b.Images.Shape()))
	assert.Equal(t, uint8(7), b.Images.Data().([]uint8)[24])

	require.Len(t, b.Targets, 3)
	assert.Equal(t, float32(0), b.Targets[0][0])
	assert.Equal(t, float32(0), b.Targets[1][0])
	assert.Equal(t, float32(2), b.Targets[2][0])
	assert.Equal(t, float32(3), b.Targets[2][1])
	assert.Equal(t, []int{3, 6}, []int(b.Labels.Shape()))
	assert.Equal(t, []string{"a", "b", "c"}, b.Paths)
	assert.Nil(t, b.Shapes[0])
	assert.Equal(t, 4, b.Shapes[2].H0)

	// Items are not modified.
	assert.Equal(t, float32(9), items[0].Labels[0][0])
}

func TestCollate_Errors(t *testing.T) {
	_, err := Collate(nil)
	assert.Error(t, err)

	_, err = Collate([]*Item{
		{Image: make([]uint8, 12), Height: 2, Width: 2},
		{Image: make([]uint8, 27), Height: 3, Width: 3},
	})
	assert.Error(t, err)

	b, err := Collate([]*Item{{Image: make([]uint8, 12), Height: 2, Width: 2}})
	require.NoError(t, err)
	assert.Nil(t, b.Labels)
}

func TestLoadHyp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hyp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("degrees: 5\nfliplr: 0.25\nmosaic_center_jitter: false\n"), 0o644))

	hyp, err := LoadHyp(path)
	require.NoError(t, err)

	expected := DefaultHyp()
	expected.Degrees = 5
	expected.FlipLR = 0.25
	expected.MosaicCenterJitter = false
	assert.Equal(t, expected, hyp)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mixup: 2\n"), 0o644))
	_, err = LoadHyp(bad)
	assert.Error(t, err)

	_, err = LoadHyp(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestHyp_PerspectiveParams(t *testing.T) {
	h := DefaultHyp()
	p := h.PerspectiveParams(image.Pt(-320, -320))
	assert.Equal(t, augment.PerspectiveParams{Translate: 0.1, Scale: 0.5, Border: image.Pt(-320, -320)}, p)
	assert.Equal(t, augment.HSVGains{H: 0.015, S: 0.7, V: 0.4}, h.HSVGains())
}
