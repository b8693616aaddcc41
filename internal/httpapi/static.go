package httpapi

import (
	"net/http"
	"path/filepath"
)

// Asset layout of the exported 3DVista tour. Directories are mounted
// whole; the root files are the viewer entry points.
var tourAssetDirs = []string{
	"loading", "media", "misc", "fonts", "lib", "skin", "locale",
}

var tourRootFiles = []string{
	"manifest.json",
	"fonts.css",
	"script.js",
	"script_general.js",
	"scorm.js",
	"realtime_audio.js",
	"favicon.ico",
}

func (r *Router) staticRoutes() {
	for _, dir := range tourAssetDirs {
		prefix := "/" + dir + "/"
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(filepath.Join(r.cfg.AssetsDir, dir))))
		r.mux.Handle("GET "+prefix, fs)
	}

	for _, name := range tourRootFiles {
		path := filepath.Join(r.cfg.AssetsDir, name)
		r.mux.HandleFunc("GET /"+name, func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, path)
		})
	}

	index := filepath.Join(r.cfg.AssetsDir, "index.htm")
	r.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, index)
	})
}
