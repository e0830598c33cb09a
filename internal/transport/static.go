package transport

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"silk-catalog/internal/repository"

	"github.com/go-chi/chi/v5"
)

// MountMedia serves the images tree below mediaRoot at /images/. Directory
// listings are not exposed.
func MountMedia(r chi.Router, mediaRoot string) {
	files := http.FileServer(http.Dir(mediaRoot))

	r.Get("/images/*", func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, req)
	})
}

// MountSite serves the storefront and admin pages from the top level of
// siteRoot, with main.html as the index. Hidden files and backups are
// never served.
func MountSite(r chi.Router, siteRoot string) {
	files := http.FileServer(http.Dir(siteRoot))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, filepath.Join(siteRoot, "main.html"))
	})

	r.Get("/{file}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "file")
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, repository.BackupSuffix) {
			http.NotFound(w, req)
			return
		}
		if info, err := os.Stat(filepath.Join(siteRoot, name)); err != nil || info.IsDir() {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, req)
	})
}
