// Package fetcher provides flyer image sources: a local directory and a
// retail-partner FTP drop folder.
package fetcher

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// imageExtensions are the flyer formats the pipeline accepts.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// IsFlyerImage reports whether the filename has an accepted image extension.
func IsFlyerImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Source lists and opens flyer images from some location.
type Source interface {
	// List returns the names of available flyer images.
	List(ctx context.Context) ([]string, error)

	// Open returns the image bytes for a listed name. The caller must
	// close the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
