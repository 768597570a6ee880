package dataset

import (
	"image"
	"os"
	"runtime"

	"github.com/nvr-ai/go-dataprep/augment"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Hyp is the augmentation hyperparameter set.
type Hyp struct {
	// Degrees is the maximum rotation (+/- deg).
	Degrees float64 `json:"degrees" yaml:"degrees"`
	// Translate is the maximum translation (+/- fraction).
	Translate float64 `json:"translate" yaml:"translate"`
	// Scale is the maximum zoom deviation (+/- gain).
	Scale float64 `json:"scale" yaml:"scale"`
	// Shear is the maximum shear (+/- deg).
	Shear float64 `json:"shear" yaml:"shear"`
	// Perspective is the maximum projective skew, range 0-0.001.
	Perspective float64 `json:"perspective" yaml:"perspective"`
	// HSVH, HSVS and HSVV are the hue, saturation and value gains.
	HSVH float64 `json:"hsv_h" yaml:"hsv_h"`
	HSVS float64 `json:"hsv_s" yaml:"hsv_s"`
	HSVV float64 `json:"hsv_v" yaml:"hsv_v"`
	// FlipUD and FlipLR are flip probabilities.
	FlipUD float64 `json:"flipud" yaml:"flipud"`
	FlipLR float64 `json:"fliplr" yaml:"fliplr"`
	// Mixup is the probability of blending a second mosaic.
	Mixup float64 `json:"mixup" yaml:"mixup"`
	// Cutout is the probability of applying cutout masks.
	Cutout float64 `json:"cutout" yaml:"cutout"`
	// Replicate is the probability of duplicating small objects in a mosaic.
	Replicate float64 `json:"replicate" yaml:"replicate"`
	// MosaicCenterJitter draws the mosaic center from [s/2, 3s/2] instead of
	// fixing it at (s, s).
	MosaicCenterJitter bool `json:"mosaic_center_jitter" yaml:"mosaic_center_jitter"`
}

// DefaultHyp returns the hyperparameters used for training from scratch.
func DefaultHyp() Hyp {
	return Hyp{
		Degrees:            0.0,
		Translate:          0.1,
		Scale:              0.5,
		Shear:              0.0,
		Perspective:        0.0,
		HSVH:               0.015,
		HSVS:               0.7,
		HSVV:               0.4,
		FlipUD:             0.0,
		FlipLR:             0.5,
		Mixup:              0.0,
		Cutout:             0.0,
		Replicate:          0.0,
		MosaicCenterJitter: true,
	}
}

// LoadHyp reads hyperparameters from a YAML file. Keys missing from the file
// keep their DefaultHyp value.
//
// Arguments:
// - path: The YAML file.
//
// Returns:
// - The merged hyperparameters.
// - error if the file cannot be read, parsed or holds invalid values.
//
// @example
// hyp, err := LoadHyp("data/hyp.scratch.yaml")
func LoadHyp(path string) (Hyp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Hyp{}, errors.Wrapf(err, "failed to read hyperparameters %s", path)
	}

	hyp := DefaultHyp()
	if err := yaml.Unmarshal(data, &hyp); err != nil {
		return Hyp{}, errors.Wrapf(err, "failed to parse hyperparameters %s", path)
	}
	if err := hyp.Validate(); err != nil {
		return Hyp{}, errors.Wrap(err, path)
	}
	return hyp, nil
}

// Validate checks that gains are non-negative and probabilities lie in [0, 1].
func (h Hyp) Validate() error {
	for name, v := range map[string]float64{
		"degrees": h.Degrees, "translate": h.Translate, "scale": h.Scale, "shear": h.Shear,
		"perspective": h.Perspective, "hsv_h": h.HSVH, "hsv_s": h.HSVS, "hsv_v": h.HSVV,
	} {
		if v < 0 {
			return errors.Errorf("hyperparameter %s must be >= 0, got %v", name, v)
		}
	}
	for name, p := range map[string]float64{
		"flipud": h.FlipUD, "fliplr": h.FlipLR, "mixup": h.Mixup, "cutout": h.Cutout, "replicate": h.Replicate,
	} {
		if p < 0 || p > 1 {
			return errors.Errorf("probability %s must be in [0, 1], got %v", name, p)
		}
	}
	return nil
}

// PerspectiveParams returns the geometric ranges with the given output border.
func (h Hyp) PerspectiveParams(border image.Point) augment.PerspectiveParams {
	return augment.PerspectiveParams{
		Degrees:     h.Degrees,
		Translate:   h.Translate,
		Scale:       h.Scale,
		Shear:       h.Shear,
		Perspective: h.Perspective,
		Border:      border,
	}
}

// HSVGains returns the color jitter gains.
func (h Hyp) HSVGains() augment.HSVGains {
	return augment.HSVGains{H: h.HSVH, S: h.HSVS, V: h.HSVV}
}

// Config configures a Dataset.
type Config struct {
	// Path lists manifest files and/or image directories.
	Path []string `json:"path" yaml:"path"`
	// ImgSize is the training image size in pixels.
	ImgSize int `json:"img_size" yaml:"img_size"`
	// BatchSize groups samples for rectangular batch shapes and the Loader.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
	// Stride is the network stride batch shapes are aligned to.
	Stride int `json:"stride" yaml:"stride"`
	// Pad adds stride multiples to rectangular batch shapes.
	Pad float64 `json:"pad" yaml:"pad"`
	// Augment enables augmentation (and mosaic, unless Rect is set).
	Augment bool `json:"augment" yaml:"augment"`
	// Rect enables aspect-ratio sorted rectangular batches.
	Rect bool `json:"rect" yaml:"rect"`
	// CacheImages keeps every resized image in memory.
	CacheImages bool `json:"cache_images" yaml:"cache_images"`
	// SingleClass collapses every class id to 0.
	SingleClass bool `json:"single_class" yaml:"single_class"`
	// Hyp holds the augmentation hyperparameters.
	Hyp Hyp `json:"hyp" yaml:"hyp"`
	// Workers bounds scan, cache and fetch concurrency.
	Workers int `json:"workers" yaml:"workers"`
	// Seed makes every sample reproducible.
	Seed uint64 `json:"seed" yaml:"seed"`
	// Progress renders progress bars on stderr.
	Progress bool `json:"progress" yaml:"progress"`
}

// DefaultConfig returns a training configuration for 640px images.
//
// Returns:
// - A Config with augmentation on, batch size 16 and stride 32.
//
// @example
// cfg := DefaultConfig()
// cfg.Path = []string{"data/train.txt"}
// ds, err := New(ctx, cfg, logger)
func DefaultConfig() Config {
	return Config{
		ImgSize:   640,
		BatchSize: 16,
		Stride:    32,
		Augment:   true,
		Hyp:       DefaultHyp(),
		Workers:   runtime.NumCPU(),
		Seed:      0,
	}
}

func (c Config) validate() error {
	switch {
	case c.ImgSize <= 0:
		return errors.Errorf("img size must be positive, got %d", c.ImgSize)
	case c.BatchSize <= 0:
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.Stride <= 0:
		return errors.Errorf("stride must be positive, got %d", c.Stride)
	case len(c.Path) == 0:
		return errors.New("no dataset path")
	}
	return c.Hyp.Validate()
}
