package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vbonduro/fotovendas/internal/session"
	"github.com/vbonduro/fotovendas/internal/upload"
)

const msgTooManyTrays = "Muitos formulários com fotos pendentes. Salve ou recarregue as outras vendas."

// validTrayKey accepts the keys the sale forms use: the new-sale tray and
// one tray per existing sale.
func validTrayKey(key string) bool {
	if key == newSaleTray {
		return true
	}
	id, ok := strings.CutPrefix(key, "sale-")
	if !ok {
		return false
	}
	return len(id) == 36 && uuid.Validate(id) == nil
}

// trayView is the data of the upload tray partial.
type trayView struct {
	Key      string
	Images   []*upload.Image
	Rejected []string
}

func (s *Server) renderTray(w http.ResponseWriter, key string, tray *upload.Tray, rejected []string) {
	v := trayView{Key: key, Images: tray.Images(), Rejected: rejected}
	if err := s.renderPartial(w, "partials/tray.html", v); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleAddToTray stages the files of the "images" field. Files that are not
// a supported image are reported back by name and skipped.
func (s *Server) handleAddToTray(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("tray")
	if !validTrayKey(key) {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	tray, err := browserFrom(r.Context()).Tray(key)
	if errors.Is(err, session.ErrTooManyTrays) {
		s.showBanner(w, msgTooManyTrays)
		return
	}
	var rejected []string
	for _, fh := range r.MultipartForm.File["images"] {
		data, err := readFormFile(fh, s.logger)
		if err != nil {
			s.logger.Error("read upload failed", "file", fh.Filename, "error", err)
			rejected = append(rejected, fh.Filename)
			continue
		}
		if _, err := tray.Add(fh.Filename, data); err != nil {
			switch {
			case errors.Is(err, upload.ErrUnsupportedType):
			case errors.Is(err, upload.ErrImageTooLarge), errors.Is(err, upload.ErrTrayFull):
				s.logger.Warn("upload refused", "file", fh.Filename, "error", err)
			default:
				s.logger.Error("stage upload failed", "file", fh.Filename, "error", err)
			}
			rejected = append(rejected, fh.Filename)
		}
	}
	s.renderTray(w, key, tray, rejected)
}

func readFormFile(fh *multipart.FileHeader, logger *slog.Logger) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer closeWithLog(f, "upload file", logger)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

// handleTrayPreview serves the thumbnail of a staged image, or the image
// itself when no thumbnail could be made.
func (s *Server) handleTrayPreview(w http.ResponseWriter, r *http.Request) {
	tray, ok := browserFrom(r.Context()).LookupTray(r.PathValue("tray"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	img, ok := tray.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, mimeType := img.Preview, "image/jpeg"
	if body == nil {
		body, mimeType = img.Data, img.MimeType
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := w.Write(body); err != nil {
		s.logger.Error("write preview failed", "error", err)
	}
}

func (s *Server) handleRemoveFromTray(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("tray")
	if !validTrayKey(key) {
		http.NotFound(w, r)
		return
	}
	tray, ok := browserFrom(r.Context()).LookupTray(key)
	if !ok {
		s.renderTray(w, key, upload.NewTray(), nil)
		return
	}
	tray.Remove(r.PathValue("id"))
	s.renderTray(w, key, tray, nil)
}

// handleGetStoredPhoto serves a photo from the local store behind a signed,
// expiring URL.
func (s *Server) handleGetStoredPhoto(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	q := r.URL.Query()
	if err := s.localPhotos.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	reader, mimeType, err := s.localPhotos.Get(r.Context(), key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "key", key, "error", err)
	}
}

// eventStream writes server-sent events. Once the client is gone every
// write is skipped.
type eventStream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
	logger  *slog.Logger
}

func newEventStream(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *eventStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &eventStream{w: w, r: r, flusher: flusher, logger: logger}
}

// send writes one event. An empty name sends an unnamed "message" event.
func (e *eventStream) send(name string, payload any) {
	if e.r.Context().Err() != nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("encode event failed", "event", name, "error", err)
		return
	}
	if name != "" {
		if _, err := fmt.Fprintf(e.w, "event: %s\n", name); err != nil {
			return
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
