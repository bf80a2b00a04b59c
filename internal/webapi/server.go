package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/session"
	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/workflow"
)

const (
	// data URLs inflate uploads by a third; leave room for a full wardrobe
	maxBodyBytes   = 64 << 20
	maxUploadBytes = 25 << 20
)

type Options struct {
	Sessions       *session.Store
	Permitted      func() bool
	RequestTimeout time.Duration
	// Static is served at "/" when set.
	Static fs.FS
	Logger *slog.Logger
}

type Server struct {
	sessions       *session.Store
	permitted      func() bool
	requestTimeout time.Duration
	static         fs.FS
	logger         *slog.Logger
	now            func() time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("webapi: session store is required")
	}
	permitted := opts.Permitted
	if permitted == nil {
		permitted = func() bool { return false }
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		sessions:       opts.Sessions,
		permitted:      permitted,
		requestTimeout: timeout,
		static:         opts.Static,
		logger:         logger,
		now:            time.Now,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.withLogging,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/options", s.handleOptions)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/subject", s.handleSetSubject)
			r.Delete("/subject", s.handleClearSubject)
			r.Post("/garments", s.handleAddGarments)
			r.Delete("/garments/{index}", s.handleRemoveGarment)
			r.Put("/settings", s.handleSetSettings)
			r.Put("/auto-render", s.handleAutoRender)
			r.Post("/render", s.handleRender)
			r.Post("/reset", s.handleReset)
			r.Get("/render.png", s.handleDownload)
		})
	})

	if s.static != nil {
		r.Handle("/*", http.FileServer(http.FS(s.static)))
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Permitted: s.permitted(),
		Sessions:  s.sessions.Len(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{
		Fields:   studio.Catalog(),
		Flags:    studio.Flags(),
		Defaults: toSettingsDTO(studio.DefaultSettings()),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	ctrl, err := s.sessions.Create(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("session created", "session", id)
	writeJSON(w, http.StatusCreated, newSessionView(id, ctrl.Snapshot(), false))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSubject(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	images, err := readImages(w, r, "image")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(images) != 1 {
		s.writeError(w, r, fmt.Errorf("%w: exactly one subject image is required", studio.ErrInvalidInput))
		return
	}
	if err := ctrl.SetSubject(images[0]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleClearSubject(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := ctrl.ClearSubject(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleAddGarments(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	images, err := readImages(w, r, "images")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(images) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: no garment images in request", studio.ErrInvalidInput))
		return
	}
	if err := ctrl.AddGarments(images...); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

// handleRemoveGarment takes a zero-based index.
func (s *Server) handleRemoveGarment(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: garment index must be a number", studio.ErrInvalidInput))
		return
	}
	if err := ctrl.RemoveGarment(idx); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

// handleSetSettings accepts a full or partial settings object; omitted
// fields keep their current values.
func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var patch json.RawMessage
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := ctrl.UpdateSettings(func(cur *studio.Settings) error {
		next, err := overlaySettings(*cur, patch)
		if err != nil {
			return err
		}
		*cur = next
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleAutoRender(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req autoRenderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctrl.SetAutoRender(req.Enabled)
	s.writeSession(w, r, id, ctrl)
}

// handleRender blocks until the render and its critique are done. A client
// that disconnects does not cancel the model calls; the result stays in the
// session for the next read.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.requestTimeout)
	defer cancel()

	if err := ctrl.Invoke(ctx); err != nil {
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			// anything past the precondition checks is a failed generation
			status, code = http.StatusBadGateway, "generation_failed"
		}
		s.writeErrorStatus(w, r, status, code, err)
		return
	}
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ctrl.Reset()
	s.writeSession(w, r, id, ctrl)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	img := ctrl.Snapshot().Generated
	if img.IsZero() {
		s.writeErrorStatus(w, r, http.StatusNotFound, "not_found", errors.New("no render available"))
		return
	}

	name := studio.RenderFileName(img.Extension(), s.now())
	w.Header().Set("Content-Type", img.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Bytes())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Bytes())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *workflow.Controller, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, r, errSessionNotFound)
		return "", nil, false
	}
	ctrl, ok := s.sessions.Get(id)
	if !ok {
		s.writeError(w, r, errSessionNotFound)
		return "", nil, false
	}
	return id, ctrl, true
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, id string, ctrl *workflow.Controller) {
	lite := parseBool(r.URL.Query().Get("lite"))
	writeJSON(w, http.StatusOK, newSessionView(id, ctrl.Snapshot(), lite))
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}

// readImages accepts either a JSON body ({"image": ...} / {"images": [...]},
// values are data URLs) or a multipart form with file fields of that name.
func readImages(w http.ResponseWriter, r *http.Request, field string) ([]media.ImageAsset, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return readMultipartImages(w, r, field)
	}

	var values []string
	if field == "image" {
		var req imageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		values = []string{req.Image}
	} else {
		var req garmentsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		values = req.Images
	}

	images := make([]media.ImageAsset, 0, len(values))
	for i, v := range values {
		img, err := media.ParseDataURL(v)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", studio.ErrInvalidInput, i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func readMultipartImages(w http.ResponseWriter, r *http.Request, field string) ([]media.ImageAsset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", studio.ErrInvalidInput)
	}

	var images []media.ImageAsset
	for _, header := range r.MultipartForm.File[field] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s", studio.ErrInvalidInput, header.Filename)
		}
		img, err := media.Sniff(data, header.Header.Get("Content-Type"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", studio.ErrInvalidInput, header.Filename, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", studio.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
