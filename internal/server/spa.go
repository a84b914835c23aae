package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// handleSPA serves files from fsys, falling back to index.html for any path
// that is not a real file so client-side routes survive a reload.
func handleSPA(fsys afero.Fs) http.HandlerFunc {
	fileServer := http.FileServer(afero.NewHttpFs(fsys))

	return func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if info, err := fsys.Stat(name); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fsys.Open("/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "index.html", info.ModTime(), f)
	}
}

// handlePictures serves generated images without directory listings.
func handlePictures(fsys afero.Fs) http.Handler {
	fileServer := http.FileServer(afero.NewHttpFs(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(w, r)
	})
}
