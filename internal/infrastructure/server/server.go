// Package server hosts a custom plugin repository: an updatePlugins.xml
// feed, archive downloads and the marketplace-compatible upload endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	httpinternal "picoedge.com/ijpkg/internal/http"
)

const (
	// DefaultMaxUpload bounds an uploaded archive
	DefaultMaxUpload = 512 << 20

	feedPath     = "/updatePlugins.xml"
	channelsDir  = "channels"
	shutdownWait = 10 * time.Second
)

var (
	channelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	unsafeFileRune = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// Options configures a repository server
type Options struct {
	// Dir stores archives; stable in Dir, other channels in Dir/channels/<name>
	Dir string
	// Token protects uploads. Uploads are refused when empty.
	Token string
	// BaseURL is advertised in the feed; derived from the request when empty
	BaseURL   string
	MaxUpload int64
	// AllowedOrigins enables CORS for the feed and downloads; uploads stay same-origin
	AllowedOrigins []string
	Inspector      ports.ArchiveInspector
	Logger         *zap.Logger
}

// Server is a self-hosted plugin repository
type Server struct {
	opts   Options
	logger *zap.Logger
	mu     sync.Mutex
	router chi.Router
}

// New creates a server, creating the storage directory if needed
func New(opts Options) (*Server, error) {
	if opts.Dir == "" {
		return nil, domain.NewConfigurationError("repository directory is required", nil)
	}
	if opts.Inspector == nil {
		return nil, domain.NewConfigurationError("archive inspector is required", nil)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, domain.NewConfigurationError("cannot create repository directory", err)
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(feedPath, s.handleFeed)
	r.Get("/plugins/{file}", s.handleDownload)
	r.Post(httpinternal.UploadPath, s.handleUpload)
	return r
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("plugin repository listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("dir", s.opts.Dir))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("plugin repository stopped")
	return nil
}

// ListenAndServe listens on addr and serves until ctx is canceled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return domain.NewConfigurationError(fmt.Sprintf("cannot listen on %s", addr), err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// =============================================================================
// Feed
// =============================================================================

type feed struct {
	XMLName xml.Name    `xml:"plugins"`
	Plugins []feedEntry `xml:"plugin"`
}

type feedEntry struct {
	ID          string      `xml:"id,attr"`
	URL         string      `xml:"url,attr"`
	Version     string      `xml:"version,attr"`
	IdeaVersion ideaVersion `xml:"idea-version"`
	Name        string      `xml:"name,omitempty"`
	Vendor      string      `xml:"vendor,omitempty"`
	Description *cdata      `xml:"description,omitempty"`
	ChangeNotes *cdata      `xml:"change-notes,omitempty"`
}

type ideaVersion struct {
	SinceBuild string `xml:"since-build,attr"`
	UntilBuild string `xml:"until-build,attr,omitempty"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

func optionalCDATA(text string) *cdata {
	if text == "" {
		return nil
	}
	return &cdata{Text: text}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	dir, err := s.channelDir(channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var host *domain.BuildNumber
	if build := r.URL.Query().Get("build"); build != "" {
		b, err := domain.ParseBuildNumber(build)
		if err != nil {
			http.Error(w, "invalid build: "+err.Error(), http.StatusBadRequest)
			return
		}
		host = &b
	}

	entries, err := s.listArchives(dir)
	if err != nil {
		s.logger.Error("cannot list repository", zap.Error(err))
		http.Error(w, "cannot list repository", http.StatusInternalServerError)
		return
	}

	base := s.baseURL(r)
	out := feed{Plugins: []feedEntry{}}
	for _, name := range entries {
		d, err := s.opts.Inspector.ReadDescriptor(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable archive", zap.String("file", name), zap.Error(err))
			continue
		}
		if host != nil {
			bounds, err := d.Bounds()
			if err != nil || !bounds.Contains(*host) {
				continue
			}
		}
		url := base + "/plugins/" + name
		if channel != "" {
			url += "?channel=" + channel
		}
		out.Plugins = append(out.Plugins, feedEntry{
			ID:          d.Identifier(),
			URL:         url,
			Version:     d.Version,
			IdeaVersion: ideaVersion{SinceBuild: d.SinceBuild, UntilBuild: d.UntilBuild},
			Name:        d.Name,
			Vendor:      d.Vendor,
			Description: optionalCDATA(d.Description),
			ChangeNotes: optionalCDATA(d.ChangeNotes),
		})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = io.WriteString(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		s.logger.Error("cannot encode feed", zap.Error(err))
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".zip") || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	dir, err := s.channelDir(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// =============================================================================
// Upload
// =============================================================================

type uploadResponse struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Channel string `json:"channel,omitempty"`
	File    string `json:"file"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="plugins"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	channel := r.FormValue("channel")
	dir, err := s.channelDir(channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, "cannot store archive", http.StatusInternalServerError)
		return
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.zip")
	if err != nil {
		http.Error(w, "cannot store archive", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		http.Error(w, "cannot read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := tmp.Close(); err != nil {
		http.Error(w, "cannot store archive", http.StatusInternalServerError)
		return
	}

	d, err := s.opts.Inspector.ReadDescriptor(tmp.Name())
	if err != nil {
		http.Error(w, "not a plugin archive: "+err.Error(), http.StatusBadRequest)
		return
	}
	if d.Version == "" {
		http.Error(w, "plugin descriptor has no version", http.StatusBadRequest)
		return
	}
	if xmlID := r.FormValue("xmlId"); xmlID != "" && xmlID != d.Identifier() {
		http.Error(w, fmt.Sprintf("xmlId %q does not match plugin id %q", xmlID, d.Identifier()), http.StatusBadRequest)
		return
	}

	name := ArchiveName(d)
	target := filepath.Join(dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(target); err == nil {
		http.Error(w, fmt.Sprintf("%s %s already exists", d.Identifier(), d.Version), http.StatusConflict)
		return
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		http.Error(w, "cannot store archive", http.StatusInternalServerError)
		return
	}

	s.logger.Info("plugin uploaded",
		zap.String("id", d.Identifier()),
		zap.String("version", d.Version),
		zap.String("channel", channel))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(uploadResponse{
		ID:      d.Identifier(),
		Version: d.Version,
		Channel: channel,
		File:    name,
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Token == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) == 1
}

// ArchiveName is the stored file name for a plugin version
func ArchiveName(d domain.PluginDescriptor) string {
	return unsafeFileRune.ReplaceAllString(d.Identifier(), "_") + "-" +
		unsafeFileRune.ReplaceAllString(d.Version, "_") + ".zip"
}

func (s *Server) channelDir(channel string) (string, error) {
	if channel == "" || channel == "stable" {
		return s.opts.Dir, nil
	}
	if !channelPattern.MatchString(channel) {
		return "", fmt.Errorf("invalid channel %q", channel)
	}
	return filepath.Join(s.opts.Dir, channelsDir, channel), nil
}

func (s *Server) listArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".zip") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.BaseURL != "" {
		return strings.TrimSuffix(s.opts.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
