package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/hub"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

const (
	replyTimeout   = 5 * time.Second
	maxNameRetries = 100
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type message struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath,omitempty"`
}

func Reset(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan overlay.AppState, 1)
		if !h.Send(r.Context(), hub.Reset{Reply: reply}) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		select {
		case <-reply:
		case <-time.After(replyTimeout):
			http.Error(w, "reset timed out", http.StatusServiceUnavailable)
			return
		}
		log.Info("state reset via http", zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusOK, message{Message: "State reset successfully."})
	}
}

func State(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.View, 1)
		if !h.Send(r.Context(), hub.GetState{Reply: reply}) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, json.RawMessage(v.Raw))
		case <-time.After(replyTimeout):
			http.Error(w, "state read timed out", http.StatusServiceUnavailable)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type uploader struct {
	hub      *hub.Hub
	dir      string
	maxBytes int64
	log      *zap.Logger
	now      func() time.Time
}

// ServeHTTP stores the multipart "file" part under a timestamped name and
// points the slot named by the "field" and "team" form values at it.
func (u *uploader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, u.maxBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "File too large.", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "No file uploaded.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name, err := u.save(file, header.Filename)
	if err != nil {
		u.log.Error("store upload", zap.Error(err))
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	ref := "/upload/" + name

	field, team := r.FormValue("field"), r.FormValue("team")
	reply := make(chan bool, 1)
	if !u.hub.Send(r.Context(), hub.SetUpload{Field: field, Team: team, Ref: ref, Reply: reply}) {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	select {
	case applied := <-reply:
		u.log.Info("file uploaded", zap.String("path", ref), zap.String("field", field),
			zap.String("team", team), zap.Bool("applied", applied))
	case <-time.After(replyTimeout):
		http.Error(w, "upload timed out", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, message{Message: "File uploaded and state updated.", FilePath: ref})
}

func (u *uploader) save(src io.Reader, original string) (string, error) {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	base := unsafeNameChars.ReplaceAllString(filepath.Base(original), "_")
	if base == "" || base == "." || base == ".." {
		base = "upload"
	}
	stamp := strconv.FormatInt(u.now().UnixMilli(), 10)

	name := stamp + "-" + base
	dst, err := os.OpenFile(filepath.Join(u.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	// Same name within the same millisecond: number the duplicates.
	for n := 1; errors.Is(err, fs.ErrExist) && n <= maxNameRetries; n++ {
		name = stamp + "-" + strconv.Itoa(n) + "-" + base
		dst, err = os.OpenFile(filepath.Join(u.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, dst.Close()
}
