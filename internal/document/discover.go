package document

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/karrick/godirwalk"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Supported source extensions.
var supportedExt = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// Supported reports whether path has an extension Discover picks up.
func Supported(path string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(path))]
}

// Discover walks root and returns every supported document in lexical order,
// so the same tree always yields the same path sequence.
func Discover(w FileSystemWalker, root string) ([]string, error) {
	var out []string
	err := w.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if path != root && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if Supported(path) {
				out = append(out, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}
