package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cratehub/crate/pkg/auth"
	"github.com/cratehub/crate/pkg/httputil"
	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/registry"
	"github.com/cratehub/crate/pkg/storage"
)

// Server represents the registry API server
type Server struct {
	backend       storage.Backend
	coordinator   *registry.Coordinator
	resolver      *registry.Resolver
	provider      auth.Provider
	logger        *observability.Logger
	metrics       *observability.Metrics
	router        *mux.Router
	publicBaseURL string
	maxUploadSize int64
	localRoot     string
}

// Options carries the optional pieces of the server: anything left at its
// zero value is simply not wired.
type Options struct {
	// PublicBaseURL overrides the scheme and host used when building
	// package URLs. When empty the request's Host header is used.
	PublicBaseURL string

	// MaxUploadSize caps the accepted archive size in bytes.
	MaxUploadSize int64

	// LocalRoot, when set, serves the directory at /storage/ so that
	// member URLs produced by the local backend resolve.
	LocalRoot string
}

// NewServer creates a new API server
func NewServer(backend storage.Backend, coordinator *registry.Coordinator, resolver *registry.Resolver, provider auth.Provider, logger *observability.Logger, metrics *observability.Metrics, opts Options) *Server {
	s := &Server{
		backend:       backend,
		coordinator:   coordinator,
		resolver:      resolver,
		provider:      provider,
		logger:        logger,
		metrics:       metrics,
		router:        mux.NewRouter(),
		publicBaseURL: opts.PublicBaseURL,
		maxUploadSize: opts.MaxUploadSize,
		localRoot:     opts.LocalRoot,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
	}

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Literal routes are registered before the {owner} patterns so that
	// "_packages" is never captured as an owner name.
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/_packages", s.listAllPackages).Methods("GET")
	v1.HandleFunc("/{owner}/_packages", s.listPackages).Methods("GET")
	v1.HandleFunc("/{owner}/{name}/_versions", s.listVersions).Methods("GET")
	v1.HandleFunc("/{owner}/{name}/package.zip", s.downloadLatest).Methods("GET")
	v1.HandleFunc("/{owner}/{name}/{version}/package.zip", s.downloadVersion).Methods("GET")
	v1.HandleFunc("/{owner}/{name}/{version}/package.zip/{member:.*}", s.downloadMember).Methods("GET")

	upload := auth.BasicAuth(s.provider, s.logger)(http.HandlerFunc(s.upload))
	v1.Handle("/{owner}/{name}/{version}/package.zip", upload).Methods("PUT", "POST")

	if s.localRoot != "" {
		fileServer := http.FileServer(http.Dir(s.localRoot))
		s.router.PathPrefix(storage.MountPath + "/").Handler(http.StripPrefix(storage.MountPath+"/", fileServer)).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := httputil.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.ObserveRequest(r.Method, path, rec.Status, time.Since(start))
	})
}

// baseURL returns the externally visible base URL for this request.
func (s *Server) baseURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
