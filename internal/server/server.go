package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"swanid/internal/blobstore"
	"swanid/internal/classifier"
	"swanid/internal/metrics"
	"swanid/internal/store"
)

const (
	apiTokenEnvKey                 = "SWANID_API_TOKEN"
	allowRemoteEnvKey              = "SWANID_ALLOW_REMOTE"
	readHeaderTimeout              = 5 * time.Second
	readTimeout                    = 60 * time.Second
	writeTimeout                   = 120 * time.Second
	idleTimeout                    = 60 * time.Second
	defaultAnalyzeConcurrencyLimit = 2
	repairConcurrencyLimit         = 1
	defaultMaxUploadBytes          = 32 << 20 // 32 MiB
	defaultMultipartMemory         = 8 << 20  // 8 MiB
)

// Options configures optional server collaborators.
type Options struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	Classifier         classifier.Classifier
	ScratchDir         string
	MaxUploadBytes     int64
	MultipartMaxMemory int64
	AnalyzeConcurrency int
	APITokenHash       string
	AllowedOrigins     []string
}

// Server wraps HTTP handlers for the swanid API.
type Server struct {
	addr               string
	images             *ImageService
	classify           *ClassifyService
	metrics            *metrics.Metrics
	logger             *slog.Logger
	apiToken           string
	apiTokenHash       string
	allowedOrigins     []string
	maxUploadBytes     int64
	multipartMaxMemory int64
	analyzeLimiter     chan struct{}
	repairLimiter      chan struct{}
}

// New creates a new server instance around one metadata store and one blob repository.
func New(addr string, meta store.MetadataStore, blobs blobstore.BlobRepository, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var storeMetrics *metrics.StoreMetrics
	var classifyMetrics *metrics.ClassifyMetrics
	if opts.Metrics != nil {
		storeMetrics = opts.Metrics.Store
		classifyMetrics = opts.Metrics.Classify
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	multipartMemory := opts.MultipartMaxMemory
	if multipartMemory <= 0 {
		multipartMemory = defaultMultipartMemory
	}
	analyzeLimit := opts.AnalyzeConcurrency
	if analyzeLimit <= 0 {
		analyzeLimit = defaultAnalyzeConcurrencyLimit
	}

	return &Server{
		addr:               addr,
		images:             NewImageService(meta, blobs, storeMetrics, logger),
		classify:           NewClassifyService(opts.Classifier, opts.ScratchDir, classifyMetrics, logger),
		metrics:            opts.Metrics,
		logger:             logger,
		apiToken:           strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		apiTokenHash:       strings.TrimSpace(opts.APITokenHash),
		allowedOrigins:     opts.AllowedOrigins,
		maxUploadBytes:     maxUpload,
		multipartMaxMemory: multipartMemory,
		analyzeLimiter:     make(chan struct{}, analyzeLimit),
		repairLimiter:      make(chan struct{}, repairConcurrencyLimit),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
