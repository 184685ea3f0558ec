// Package server serves the dashboard pages, the figure API and the
// Prometheus metrics endpoint over the current dataset snapshot.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/render"
	"github.com/KaramelBytes/labdash/internal/views"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options configures a Server.
type Options struct {
	Addr            string
	CacheSize       int
	ChartWidth      int
	ChartHeight     int
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	// Registry receives the server's collectors; nil uses a private registry.
	Registry *prometheus.Registry
}

// Server answers page and API requests. Every request reads the snapshot
// current when it arrives and runs its view pipeline synchronously.
type Server struct {
	store   *dataset.Store
	views   *views.Registry
	cache   *lru.Cache[string, *views.Result]
	log     *slog.Logger
	metrics *metrics
	promReg *prometheus.Registry
	pages   *template.Template
	opt     Options
	router  chi.Router
}

// New builds a server over store. It takes over store.OnSwap to drop cached
// figures of replaced snapshots.
func New(store *dataset.Store, reg *views.Registry, opt Options) (*Server, error) {
	if store == nil || reg == nil {
		return nil, errors.New("server: store and view registry are required")
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = 256
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Registry == nil {
		opt.Registry = prometheus.NewRegistry()
	}
	cache, err := lru.New[string, *views.Result](opt.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("figure cache: %w", err)
	}
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		store:   store,
		views:   reg,
		cache:   cache,
		log:     opt.Logger,
		metrics: newMetrics(opt.Registry),
		promReg: opt.Registry,
		pages:   pages,
		opt:     opt,
	}
	reg.Observe(s.metrics.observe)
	if ds := store.Current(); ds != nil {
		s.metrics.loadedAt.Set(float64(ds.LoadedAt.Unix()))
	}
	store.OnSwap = func(ds *dataset.Dataset) {
		s.cache.Purge()
		s.metrics.loadedAt.Set(float64(ds.LoadedAt.Unix()))
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	for _, spec := range s.views.Specs() {
		r.Get(spec.Path, s.handlePage(spec.ID))
	}
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/views", s.handleViews)
		r.Get("/views/{id}/{file}", s.handleViewFile)
		r.Get("/dataset", s.handleDataset)
		r.Post("/dataset/reload", s.handleReload)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opt.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.opt.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), s.opt.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down", "timeout", s.opt.ShutdownTimeout)
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Figure resolves sel for the view, serving from the cache when the same
// snapshot already answered the same selection.
func (s *Server) Figure(id string, sel views.Selection) (*views.Result, error) {
	v, ok := s.views.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", views.ErrUnknownView, id)
	}
	resolved, err := views.Resolve(v.Spec(), sel)
	if err != nil {
		return nil, err
	}
	ds := s.store.Current()
	key := cacheKey(ds, s.views, id, resolved)
	if res, ok := s.cache.Get(key); ok {
		s.metrics.cacheHits.Inc()
		return res, nil
	}
	s.metrics.cacheMisses.Inc()
	res, err := s.views.Invoke(id, ds, resolved)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, res)
	return res, nil
}

func cacheKey(ds *dataset.Dataset, reg *views.Registry, id string, sel views.Selection) string {
	var b strings.Builder
	if ds != nil {
		b.WriteString(ds.Version)
	}
	b.WriteByte('|')
	if bind, ok := reg.Binding(id); ok {
		b.WriteString(bind.Key())
	}
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|" + k + "=" + sel[k])
	}
	return b.String()
}

// renderOptions sizes static images. Query values win, then the figure's own
// layout height, then the configured chart size.
func (s *Server) renderOptions(fig *figure.Figure, width, height int) render.Options {
	o := render.Options{Width: s.opt.ChartWidth, Height: s.opt.ChartHeight}
	if fig.Layout.Height > 0 {
		o.Height = fig.Layout.Height
	}
	if width > 0 {
		o.Width = width
	}
	if height > 0 {
		o.Height = height
	}
	return o
}
