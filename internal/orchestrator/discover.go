package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"comicsqueeze/internal/comic"
)

// IsOutput reports whether a file name looks like a converter-produced
// archive. Discovery and the directory watcher both skip such files, so
// the converter never feeds on its own output.
func IsOutput(name string) bool {
	return strings.Contains(name, outputMarker)
}

// Discover resolves an input path into the list of comic containers to
// convert. A file must itself be a supported container; a directory is
// walked recursively and unsupported entries are silently discarded.
// Outputs of earlier runs are discarded too, so converting a directory
// twice does not re-compress its own results.
func Discover(path string) ([]comic.Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}
	if !info.IsDir() {
		c, err := comic.Classify(path)
		if err != nil {
			return nil, err
		}
		return []comic.Container{c}, nil
	}

	var found []comic.Container
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsOutput(filepath.Base(p)) {
			return nil
		}
		c, cerr := comic.Classify(p)
		if cerr != nil {
			return nil
		}
		found = append(found, c)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", path, walkErr)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}
