package tracker

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed www
var embedded embed.FS

// Pages returns the static resources served by the tracker. A non-empty dir
// replaces the built-in pages.
func Pages(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "www")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
