// Package labels scans image/label file pairs into a cache of label rows and
// image shapes, and persists that cache next to the label directory.
package labels

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LabelPath derives the label file of an image: every "images" path segment
// text becomes "labels" and the extension becomes ".txt".
//
// @example
// LabelPath("data/images/train/0001.jpg") // "data/labels/train/0001.txt"
func LabelPath(imgPath string) string {
	p := strings.ReplaceAll(imgPath, "images", "labels")
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".txt"
}

// LabelPaths maps LabelPath over imgFiles.
func LabelPaths(imgFiles []string) []string {
	out := make([]string, len(imgFiles))
	for i, f := range imgFiles {
		out[i] = LabelPath(f)
	}
	return out
}

// ParseLabelFile reads whitespace-separated float rows from path.
//
// Arguments:
// - path: The label file.
//
// Returns:
// - The rows, or nil when the file holds none.
// - true when the file does not exist, which is not an error.
// - error if a token is not a number or rows have different lengths.
func ParseLabelFile(path string) ([][]float32, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read label file %s", path)
	}

	rows, err := ParseLabels(string(data))
	if err != nil {
		return nil, false, errors.Wrap(err, path)
	}
	return rows, false, nil
}

// ParseLabels parses label text. Blank lines are ignored.
func ParseLabels(text string) ([][]float32, error) {
	var rows [][]float32
	for n, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(rows) > 0 && len(fields) != len(rows[0]) {
			return nil, errors.Errorf("line %d: %d columns, expected %d", n+1, len(fields), len(rows[0]))
		}

		row := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Errorf("line %d: invalid value %q", n+1, f)
			}
			row[i] = float32(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
