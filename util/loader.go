// Package util holds file discovery and process-level helpers shared by the
// dataset and the command line tools.
package util

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/go-dataprep/images"
	"github.com/pkg/errors"
)

// ErrNotExist is returned when a dataset path is neither a file nor a directory.
var ErrNotExist = errors.New("path does not exist")

// ListImageFiles returns the image files directly inside dir, sorted by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []string: Paths of the files with a supported image extension.
// - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	var paths []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if images.IsImageFile(file.Name()) {
			paths = append(paths, filepath.Join(dir, file.Name()))
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// ReadManifest reads a list of image paths, one per line. Lines starting with
// "./" are resolved against the manifest's directory; blank lines are skipped.
//
// Arguments:
// - path: The manifest file.
//
// Returns:
// - []string: The listed paths in file order.
// - error: Error if the manifest cannot be read.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %s", path)
	}
	defer f.Close()

	parent := filepath.Dir(path)

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "./") {
			line = filepath.Join(parent, line[2:])
		}
		paths = append(paths, filepath.FromSlash(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	return paths, nil
}

// ResolveImageFiles expands every entry of paths (a manifest file or a
// directory) into image file paths.
//
// Arguments:
// - paths: Manifest files and/or directories.
//
// Returns:
// - []string: The sorted image paths with a supported extension.
// - error: Error wrapping ErrNotExist for a missing entry, or a read error.
//
// @example
// files, err := ResolveImageFiles([]string{"data/train.txt", "data/extra/images"})
func ResolveImageFiles(paths []string) ([]string, error) {
	var found []string
	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		switch {
		case err != nil:
			return nil, errors.Wrap(ErrNotExist, p)
		case info.IsDir():
			files, err := ListImageFiles(p)
			if err != nil {
				return nil, err
			}
			found = append(found, files...)
		default:
			files, err := ReadManifest(p)
			if err != nil {
				return nil, err
			}
			found = append(found, files...)
		}
	}

	var filtered []string
	for _, f := range found {
		if images.IsImageFile(f) {
			filtered = append(filtered, f)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}
