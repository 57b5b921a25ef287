package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"cowsay-gateway/config"
	"cowsay-gateway/internal/archive"
	"cowsay-gateway/internal/auth"
	"cowsay-gateway/internal/cache"
	"cowsay-gateway/internal/cowsay"
	"cowsay-gateway/internal/health"
	"cowsay-gateway/internal/metrics"
	"cowsay-gateway/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxRequestBytes = 1 << 20
	archiveTimeout  = 30 * time.Second
	minWriteTimeout = 30 * time.Second
	writeMargin     = 5 * time.Second
)

// RenderRequest is the body of POST /cowsay. A nil Text means the default text.
type RenderRequest struct {
	Text *string `json:"text"`
}

type RenderResponse struct {
	CowsayOutput string `json:"cowsayOutput"`
}

type ModelsResponse struct {
	Models []cowsay.Model `json:"models"`
}

type renderArchiver interface {
	Store(ctx context.Context, text, output string) (string, error)
}

type Service struct {
	config        *config.Config
	resolver      *cowsay.Resolver
	healthChecker health.HealthChecker
	authenticator *auth.Authenticator
	renderCache   *cache.TTLCache[string]
	archiver      renderArchiver
	metrics       *metrics.Metrics
	server        *http.Server
	isHealthy     atomic.Bool
	archiving     sync.WaitGroup
}

func main() {
	var configPath string
	var showHelp bool

	flag.StringVar(&configPath, "config", os.Getenv("COWSAY_CONFIG_PATH"), "Path to configuration file")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.Parse()

	if showHelp {
		showUsage()
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.OverrideFromEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	service, err := NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	if err := service.Start(); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}
}

// loadConfig reads an explicit path, falls back to ./config.toml when present,
// and otherwise runs on defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	if _, err := os.Stat("config.toml"); err == nil {
		return config.LoadConfig("config.toml")
	}
	log.Println("No config file given, using defaults")
	return config.Default(), nil
}

func showUsage() {
	fmt.Println("Cowsay Gateway - HTTP API around the cowsay command")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    cowsay-gateway [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    --config <file>    Path to configuration file (default: ./config.toml if present)")
	fmt.Println("    --help             Show this help message")
	fmt.Println()
	fmt.Println("ENDPOINTS:")
	fmt.Println("    GET  /health       Check that cowsay can be run")
	fmt.Println("    POST /cowsay       Render {\"text\": \"...\"} (default \"Moo!\")")
	fmt.Println("    GET  /models       List served models")
	fmt.Println("    GET  /metrics      Prometheus metrics")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("    COWSAY_CONFIG_PATH                  - Path to configuration file")
	fmt.Println("    COWSAY_SERVER_HOST                  - Listen host (default 0.0.0.0)")
	fmt.Println("    COWSAY_SERVER_PORT                  - Listen port (default 80)")
	fmt.Println("    COWSAY_SERVER_GRACEFUL_SHUTDOWN_SEC - Drain time before shutdown (default 30)")
	fmt.Println("    COWSAY_CANDIDATES                   - Comma separated cowsay paths, tried in order")
	fmt.Println("    COWSAY_DEFAULT_TEXT                 - Text used when a request has none")
	fmt.Println("    COWSAY_TIMEOUT_SEC                  - Per invocation timeout (default 10)")
	fmt.Println("    COWSAY_MAX_TEXT_LENGTH              - Maximum text length (default 1000)")
	fmt.Println("    COWSAY_REMEMBER_RESOLVED            - Try the last working candidate first")
	fmt.Println("    COWSAY_CACHE_SIZE                   - Rendered outputs cached, 0 disables (default 0)")
	fmt.Println("    COWSAY_CACHE_EXPIRATION             - Render cache TTL in seconds (default 3600)")
	fmt.Println("    COWSAY_AUTH_KEYS                    - Comma separated API keys")
	fmt.Println("    COWSAY_AUTH_SERVICE_URL             - Key verification service URL")
	fmt.Println("    COWSAY_AUTH_SERVICE_TOKEN           - Key verification service token")
	fmt.Println("    COWSAY_AUTH_FAIL_OPEN               - Allow requests when verification is down")
	fmt.Println("    COWSAY_ARCHIVE_BUCKET               - S3 bucket for rendered output (off when empty)")
	fmt.Println("    COWSAY_ARCHIVE_ENDPOINT, COWSAY_ARCHIVE_REGION, COWSAY_ARCHIVE_ACCESS_KEY_ID,")
	fmt.Println("    COWSAY_ARCHIVE_SECRET_KEY, COWSAY_ARCHIVE_PREFIX")
}

func NewService(cfg *config.Config) (*Service, error) {
	return newService(cfg, cowsay.ExecRunner{})
}

func newService(cfg *config.Config, runner cowsay.Runner) (*Service, error) {
	resolver := cowsay.NewResolver(cowsay.ResolverConfig{
		Candidates:       cfg.Cowsay.Candidates,
		Timeout:          time.Duration(cfg.Cowsay.TimeoutSec) * time.Second,
		RememberResolved: cfg.Cowsay.RememberResolved,
		Runner:           runner,
	})
	log.Printf("Cowsay candidates: %v", resolver.Candidates())

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Keys:            cfg.Auth.Keys,
		ServiceURL:      cfg.Auth.ServiceURL,
		ServiceToken:    cfg.Auth.ServiceToken,
		CacheExpiration: time.Duration(cfg.Auth.CacheExpiration) * time.Second,
		HTTPTimeout:     time.Duration(cfg.Auth.HTTPTimeout) * time.Second,
		CacheSize:       cfg.Auth.CacheSize,
		FailOpen:        cfg.Auth.FailOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %v", err)
	}
	if authenticator.Enabled() {
		log.Printf("API key authentication enabled (static keys=%d, service=%q, fail_open=%v)", len(cfg.Auth.Keys), cfg.Auth.ServiceURL, cfg.Auth.FailOpen)
	}

	service := &Service{
		config:        cfg,
		resolver:      resolver,
		healthChecker: cowsay.NewHealthChecker(resolver),
		authenticator: authenticator,
		metrics:       metrics.New(),
	}
	service.isHealthy.Store(true)

	if cfg.Cache.Size != nil && *cfg.Cache.Size > 0 {
		service.renderCache, err = cache.New[string](*cfg.Cache.Size, time.Duration(cfg.Cache.Expiration)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to create render cache: %v", err)
		}
		log.Printf("Render cache: size=%d, expiration=%ds", *cfg.Cache.Size, cfg.Cache.Expiration)
	}

	if cfg.Archive.Bucket != "" {
		service.archiver = archive.NewArchiver(archive.Config{
			Endpoint:    cfg.Archive.Endpoint,
			Region:      cfg.Archive.Region,
			Bucket:      cfg.Archive.Bucket,
			AccessKeyID: cfg.Archive.AccessKeyID,
			SecretKey:   cfg.Archive.SecretKey,
			Prefix:      cfg.Archive.Prefix,
		})
		log.Printf("Archiving renders: bucket=%s, endpoint=%s, region=%s", cfg.Archive.Bucket, cfg.Archive.Endpoint, cfg.Archive.Region)
	}

	service.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      service.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	return service, nil
}

// writeTimeout leaves room for every candidate to hit its own timeout, so a slow
// lookup still ends in a JSON 500 instead of a dropped connection.
func writeTimeout(cfg *config.Config) time.Duration {
	perCall := time.Duration(cfg.Cowsay.TimeoutSec) * time.Second
	if perCall <= 0 {
		perCall = cowsay.DefaultTimeout
	}
	candidates := len(cfg.Cowsay.Candidates)
	if candidates == 0 {
		candidates = len(cowsay.DefaultCandidates)
	}

	budget := time.Duration(candidates)*perCall + writeMargin
	if budget < minWriteTimeout {
		return minWriteTimeout
	}
	return budget
}

func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticator.Middleware)
		r.Post("/cowsay", s.handleCowsay)
		r.Get("/models", s.handleModels)
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.isHealthy.Load() {
		respond.JSON(w, http.StatusServiceUnavailable, health.Response{
			Status: health.StatusUnhealthy,
			Error:  "service shutting down",
		})
		return
	}

	statusCode, body, err := s.healthChecker.CheckHealth(r.Context())
	if err != nil {
		log.Printf("Health check failed: %v", err)
		s.metrics.ObserveHealth(health.StatusUnhealthy)
	} else {
		s.metrics.ObserveHealth(health.StatusHealthy)
	}

	respond.Raw(w, statusCode, body)
}

func (s *Service) handleCowsay(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	text, err := s.readText(r)
	if err != nil {
		s.metrics.ObserveRender(metrics.OutcomeRejected, 0)
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.Key(text)
	if s.renderCache != nil {
		if output, ok := s.renderCache.Get(key); ok {
			s.metrics.ObserveRender(metrics.OutcomeCached, time.Since(start))
			respond.JSON(w, http.StatusOK, RenderResponse{CowsayOutput: output})
			return
		}
	}

	result, err := s.resolver.Resolve(r.Context(), text)
	if err != nil {
		kind := cowsay.Kind(err)
		s.metrics.ObserveRender(kind, time.Since(start))
		log.Printf("Render failed (%s): %v", kind, err)
		respond.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.ObserveRender(metrics.OutcomeOK, time.Since(start))

	if s.renderCache != nil {
		s.renderCache.Add(key, result.Output)
	}
	s.archive(text, result.Output)

	respond.JSON(w, http.StatusOK, RenderResponse{CowsayOutput: result.Output})
}

func (s *Service) readText(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return "", errors.New("failed to read request body")
	}

	var req RenderRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return "", errors.New("invalid JSON body")
		}
	}

	text := s.config.Cowsay.DefaultText
	if req.Text != nil {
		text = *req.Text
	}

	if limit := s.config.Cowsay.MaxTextLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		return "", fmt.Errorf("text exceeds maximum length of %d characters", limit)
	}

	return text, nil
}

// archive uploads in the background; a failed upload never fails the render.
func (s *Service) archive(text, output string) {
	if s.archiver == nil {
		return
	}

	s.archiving.Add(1)
	go func() {
		defer s.archiving.Done()

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if _, err := s.archiver.Store(ctx, text, output); err != nil {
			log.Printf("Archive failed: %v", err)
		}
	}()
}

func (s *Service) handleModels(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, ModelsResponse{
		Models: cowsay.Models(s.config.Cowsay.MaxTextLength, time.Duration(s.config.Cowsay.TimeoutSec)*time.Second),
	})
}

// probe logs whether cowsay and the archive bucket are usable at startup.
// Neither blocks startup; /health keeps reporting the live state.
func (s *Service) probe(ctx context.Context) {
	if _, _, err := s.healthChecker.CheckHealth(ctx); err != nil {
		log.Printf("Warning: %v", err)
	} else {
		log.Println("Cowsay is available")
	}

	if a, ok := s.archiver.(*archive.Archiver); ok {
		if err := a.CheckHealth(ctx); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
}

func (s *Service) Start() error {
	s.probe(context.Background())

	log.Printf("Starting cowsay gateway on %s", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, starting graceful shutdown...")

	// Load balancers stop routing once /health turns unhealthy
	s.isHealthy.Store(false)

	gracefulWait := time.Duration(s.config.Server.GracefulShutdownSec) * time.Second
	log.Printf("Waiting %v for existing requests to complete...", gracefulWait)
	time.Sleep(gracefulWait)

	return s.Shutdown(context.Background())
}

// Shutdown stops the server and waits for pending archive uploads.
func (s *Service) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	s.archiving.Wait()

	log.Println("Server exited")
	return err
}
