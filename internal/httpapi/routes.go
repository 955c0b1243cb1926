package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/hub"
	"github.com/DoyleJ11/overlay-sync/internal/ws"
)

type Options struct {
	UploadDir      string
	MaxUploadBytes int64
	OriginPatterns []string
}

func SetupRoutes(h *hub.Hub, log *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)

	uploads := &uploader{hub: h, dir: opts.UploadDir, maxBytes: opts.MaxUploadBytes, log: log, now: time.Now}

	// The socket is served on both paths; older editors dial the bare host.
	wsHandler := ws.Handler(h, log, ws.Options{
		OriginPatterns: opts.OriginPatterns,
		ReadLimit:      opts.MaxUploadBytes,
	})
	r.Get("/ws", wsHandler)
	r.Get("/", wsHandler)

	r.Post("/reset", Reset(h, log))
	r.Post("/upload", uploads.ServeHTTP)
	r.Handle("/upload/*", http.StripPrefix("/upload/", http.FileServer(http.Dir(opts.UploadDir))))
	r.Get("/state", State(h))
	r.Get("/healthz", Healthz)
	return r
}

// allowCORS lets a control panel served from another origin call the API.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
