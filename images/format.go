package images

import (
	"path/filepath"
	"strings"
)

// ImageExtensions lists the file extensions accepted as dataset images.
var ImageExtensions = []string{".bmp", ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".dng"}

// VideoExtensions lists the file extensions accepted as video sources.
var VideoExtensions = []string{".mov", ".avi", ".mp4", ".mpg", ".mpeg", ".m4v", ".wmv", ".mkv"}

// IsImageFile reports whether the path has a supported image extension.
// The comparison is case-insensitive.
func IsImageFile(path string) bool {
	return hasExtension(path, ImageExtensions)
}

// IsVideoFile reports whether the path has a supported video extension.
func IsVideoFile(path string) bool {
	return hasExtension(path, VideoExtensions)
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
