package http

import (
	"io/fs"
	stdhttp "net/http"
	"path"
)

// staticFS serves files from a directory. Directories without an
// index.html report not found instead of being listed.
type staticFS struct {
	root stdhttp.FileSystem
}

func newStaticFS(dir string) staticFS {
	return staticFS{root: stdhttp.Dir(dir)}
}

func (s staticFS) Open(name string) (stdhttp.File, error) {
	f, err := s.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := s.root.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	_ = index.Close()
	return f, nil
}
