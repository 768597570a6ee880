package dataset

import (
	"fmt"

	"github.com/nvr-ai/go-dataprep/util"
	"github.com/pkg/errors"
)

var (
	// ErrNoImages is returned when the dataset paths hold no usable image.
	ErrNoImages = errors.New("no images found")
	// ErrNotExist is returned when a dataset path does not exist.
	ErrNotExist = util.ErrNotExist
	// ErrNoLabels is returned when augmentation is requested for a dataset
	// without a single label.
	ErrNoLabels = errors.New("no labels found, cannot train without labels")
)

// LabelError reports a malformed label file.
type LabelError struct {
	Path   string
	Reason string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("invalid labels in %s: %s", e.Path, e.Reason)
}
