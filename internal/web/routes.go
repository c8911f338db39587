package web

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-verify/internal/web/handlers"
	"github.com/kozaktomas/face-verify/internal/web/static"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	facesHandler := handlers.NewFacesHandler(s.service)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		r.Get("/faces", facesHandler.List)
		r.Post("/faces/register", facesHandler.Register)
		r.Post("/faces/verify", facesHandler.Verify)
	})

	s.router.Get("/*", serveStatic)
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveStatic serves the embedded capture page. Unknown paths fall back to
// index.html.
func serveStatic(w http.ResponseWriter, r *http.Request) {
	fs := static.FileSystem()

	name := r.URL.Path
	if name == "/" || name == "" {
		name = "/index.html"
	}

	f, err := fs.Open(name)
	if err == nil {
		if stat, statErr := f.Stat(); statErr != nil || stat.IsDir() {
			f.Close()
			f, err = nil, http.ErrMissingFile
		}
	}
	if err != nil {
		if strings.HasPrefix(name, "/api/") {
			http.NotFound(w, r)
			return
		}
		name = "/index.html"
		if f, err = fs.Open(name); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	defer f.Close()

	contentType, ok := contentTypes[path.Ext(name)]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
