package labels

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
)

// CacheVersion is bumped whenever the Cache layout changes so that older
// cache files are rescanned instead of misread.
const CacheVersion = 1

// Entry is the scan result of one image.
type Entry struct {
	// Labels are the rows of the label file, nil when it has none.
	Labels [][]float32
	// Shape is the displayed image size.
	Shape images.Shape
	// LabelMissing is set when no label file exists.
	LabelMissing bool
	// Err describes why the image is unusable. Empty for usable images.
	Err string
}

// Usable reports whether the image was read successfully.
func (e *Entry) Usable() bool {
	return e != nil && e.Err == ""
}

// Cache maps image paths to scan results. Hash is the integrity tag of the
// files the cache was built from.
type Cache struct {
	Version int
	Hash    uint64
	Entries map[string]*Entry
}

// Stats counts the scan outcomes of a cache.
type Stats struct {
	// Found is the number of images with at least one label row.
	Found int
	// Missing is the number of images without a label file.
	Missing int
	// Empty is the number of images with an empty label file.
	Empty int
	// Corrupt is the number of unusable images.
	Corrupt int
}

// Stats counts the outcomes of every entry.
func (c *Cache) Stats() Stats {
	var s Stats
	for _, e := range c.Entries {
		switch {
		case !e.Usable():
			s.Corrupt++
		case len(e.Labels) > 0:
			s.Found++
		case e.LabelMissing:
			s.Missing++
		default:
			s.Empty++
		}
	}
	return s
}

// CachePath returns "<dir of the first label file>.cache".
func CachePath(labelFiles []string) string {
	if len(labelFiles) == 0 {
		return ""
	}
	return filepath.Dir(labelFiles[0]) + ".cache"
}

// Hash sums the byte sizes of every path that exists. Missing files count as
// zero, so adding a label file changes the hash.
func Hash(paths ...[]string) uint64 {
	var sum uint64
	for _, group := range paths {
		for _, p := range group {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				sum += uint64(info.Size())
			}
		}
	}
	return sum
}

// LoadCache reads a cache written by Save.
func LoadCache(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache %s", path)
	}
	defer f.Close()

	var c Cache
	if err := gob.NewDecoder(f).Decode(&c); err != nil {
		return nil, errors.Wrapf(err, "failed to decode cache %s", path)
	}
	if c.Version != CacheVersion {
		return nil, errors.Errorf("cache %s has version %d, expected %d", path, c.Version, CacheVersion)
	}
	if c.Entries == nil {
		c.Entries = map[string]*Entry{}
	}
	return &c, nil
}

// Save writes the cache to path, replacing any existing file atomically.
func (c *Cache) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create cache %s", path)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(c); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to encode cache %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write cache %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "failed to replace cache %s", path)
}
