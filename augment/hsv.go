package augment

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// HSVGains are the maximum relative changes of hue, saturation and value.
type HSVGains struct {
	H float64 `json:"hsv_h" yaml:"hsv_h"`
	S float64 `json:"hsv_s" yaml:"hsv_s"`
	V float64 `json:"hsv_v" yaml:"hsv_v"`
}

// AugmentHSV jitters the hue, saturation and value of a BGR image in place.
// Each channel is multiplied by a gain drawn from [1-g, 1+g]; hue wraps at
// 180 and the other channels saturate at 255.
//
// Arguments:
// - rng: Source of randomness for this sample.
// - img: An 8-bit 3-channel BGR image, modified in place.
// - gains: Per-channel gain ranges.
//
// Returns:
// - error if img is not an 8-bit 3-channel image.
func AugmentHSV(rng *rand.Rand, img *gocv.Mat, gains HSVGains) error {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return errors.Errorf("augment hsv: expected 8-bit 3-channel image, got type %v", img.Type())
	}

	r := [3]float64{
		uniform(rng, -1, 1)*gains.H + 1,
		uniform(rng, -1, 1)*gains.S + 1,
		uniform(rng, -1, 1)*gains.V + 1,
	}
	lut := HSVTable(r)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*img, &hsv, gocv.ColorBGRToHSV)

	data, err := hsv.DataPtrUint8()
	if err != nil {
		return errors.Wrap(err, "augment hsv: failed to access pixel data")
	}
	for i := 0; i+2 < len(data); i += 3 {
		data[i] = lut[0][data[i]]
		data[i+1] = lut[1][data[i+1]]
		data[i+2] = lut[2][data[i+2]]
	}

	gocv.CvtColor(hsv, img, gocv.ColorHSVToBGR)
	return nil
}

// HSVTable builds the per-channel 256-entry lookup tables for the given
// multiplicative gains.
func HSVTable(r [3]float64) [3][256]uint8 {
	var lut [3][256]uint8
	for x := 0; x < 256; x++ {
		v := float64(x)
		lut[0][x] = uint8(math.Mod(v*r[0], 180))
		lut[1][x] = uint8(math.Min(math.Max(v*r[1], 0), 255))
		lut[2][x] = uint8(math.Min(math.Max(v*r[2], 0), 255))
	}
	return lut
}
