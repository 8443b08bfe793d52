package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// DirSource reads flyer images from a local folder.
type DirSource struct {
	dir string
}

// NewDirSource creates a source over the given directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// List returns the image filenames in the folder, sorted for stable runs.
func (s *DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read dir %s", s.dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsFlyerImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open opens one image by name.
func (s *DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", name)
	}
	return f, nil
}

// Path returns the full local path for a listed name. Used as the retry
// queue key so re-runs over the same folder match prior failures.
func (s *DirSource) Path(name string) string {
	return filepath.Join(s.dir, name)
}
