// Package server provides a standalone S3-compatible storage server.
//
// This package wraps the S3 transport layer and storage drivers into a
// self-contained server that can be used for local development and testing.
//
// Example usage:
//
//	cfg := &server.Config{
//		Port:            9000,
//		DSN:             "local:///var/data/s3gw",
//		AccessKeyID:     "s3gw",
//		SecretAccessKey: "s3gwsecret",
//	}
//	srv, err := server.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/holgern/s3gw/pkg/storage"
	"github.com/holgern/s3gw/pkg/storage/transport/s3"

	_ "github.com/holgern/s3gw/pkg/storage/driver/local"
	_ "github.com/holgern/s3gw/pkg/storage/driver/remote"
)

// Config configures the S3-compatible server.
type Config struct {
	// Host to bind to. Default "0.0.0.0".
	Host string

	// Port to listen on. Default 9000.
	Port int

	// DSN for storage backend.
	// Examples:
	//   "local:///var/data/s3gw"
	//   "remote:myworkspace?cache=/var/data/s3gw/mdcache.db"
	// Default: "local://$HOME/data/s3gw"
	DSN string

	// AccessKeyID for S3 authentication. Default "s3gw".
	// If empty, authentication is disabled.
	AccessKeyID string

	// SecretAccessKey for S3 authentication. Default "s3gwsecret".
	SecretAccessKey string

	// Region for S3 responses. Default "us-east-1".
	Region string

	// MaxObjectSize limits upload size. Default 5GB.
	MaxObjectSize int64

	// ReadTimeout for HTTP reads. Default 60s.
	ReadTimeout time.Duration

	// WriteTimeout for HTTP writes. Default 60s.
	WriteTimeout time.Duration

	// Logger for server logs. If nil, uses slog.Default().
	Logger *slog.Logger

	// EnablePprof enables pprof profiling endpoints. Default true.
	// When enabled, the following endpoints are available:
	//   /debug/pprof/
	//   /debug/pprof/cmdline
	//   /debug/pprof/profile
	//   /debug/pprof/symbol
	//   /debug/pprof/trace
	//   /debug/pprof/heap
	//   /debug/pprof/goroutine
	//   /debug/pprof/block
	//   /debug/pprof/mutex
	EnablePprof bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := homeDir + "/data/s3gw"

	return &Config{
		Host:            "0.0.0.0",
		Port:            9000,
		DSN:             "local://" + dataDir,
		AccessKeyID:     "s3gw",
		SecretAccessKey: "s3gwsecret",
		Region:          "us-east-1",
		MaxObjectSize:   5 * 1024 * 1024 * 1024, // 5GB
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    60 * time.Second,
		EnablePprof:     true,
	}
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.DSN == "" {
		c.DSN = def.DSN
	}
	if c.AccessKeyID == "" {
		c.AccessKeyID = def.AccessKeyID
	}
	if c.SecretAccessKey == "" {
		c.SecretAccessKey = def.SecretAccessKey
	}
	if c.Region == "" {
		c.Region = def.Region
	}
	if c.MaxObjectSize == 0 {
		c.MaxObjectSize = def.MaxObjectSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is an S3-compatible storage server.
type Server struct {
	config  *Config
	storage storage.Storage
	mux     *http.ServeMux
	server  *http.Server

	mu       sync.Mutex
	running  bool
	addr     string
	listener net.Listener
}

// New creates a new S3-compatible server.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}

	if err := ensureDataDir(cfg.DSN); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stor, err := storage.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s3Config := &s3.Config{
		Region:        cfg.Region,
		MaxObjectSize: cfg.MaxObjectSize,
		Logger:        cfg.Logger,
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		s3Config.Credentials = s3.NewStaticCredentialProvider(map[string]*s3.Credential{
			cfg.AccessKeyID: {
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			},
		})
		s3Config.Signer = &s3.SignerV4{}
	}

	mux := http.NewServeMux()
	s3.Register(mux, "", stor, s3Config)

	return &Server{
		config:  cfg,
		storage: stor,
		mux:     mux,
	}, nil
}

// ensureDataDir ensures the data directory exists for the local storage
// driver. Other driver schemes manage their own on-disk state.
func ensureDataDir(dsn string) error {
	var path string
	switch {
	case strings.HasPrefix(dsn, "local://"):
		path = strings.TrimPrefix(dsn, "local://")
	case strings.HasPrefix(dsn, "file://"):
		path = strings.TrimPrefix(dsn, "file://")
	default:
		return nil
	}

	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// Start starts the server and blocks until it's stopped.
func (s *Server) Start() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}

	s.config.Logger.Info("s3gw server started", "addr", s.addr, "region", s.config.Region)

	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// StartBackground starts the server in a goroutine and returns immediately.
// Use Stop() or Shutdown() to stop the server.
func (s *Server) StartBackground() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}

	s.config.Logger.Info("s3gw server started", "addr", s.addr, "region", s.config.Region)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error("server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, errors.New("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s.listener = listener
	s.addr = listener.Addr().String()
	s.running = true

	s.server = &http.Server{
		Handler:           s.handler(),
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 16,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return listener, nil
}

func (s *Server) handler() http.Handler {
	var pprofMux *http.ServeMux
	if s.config.EnablePprof {
		pprofMux = http.NewServeMux()
		pprofMux.HandleFunc("/debug/pprof/", pprof.Index)
		pprofMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		pprofMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		pprofMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		pprofMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		pprofMux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		pprofMux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		pprofMux.Handle("/debug/pprof/block", pprof.Handler("block"))
		pprofMux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
		pprofMux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
		pprofMux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pprofMux != nil && strings.HasPrefix(r.URL.Path, "/debug/pprof") {
			pprofMux.ServeHTTP(w, r)
			return
		}

		if r.URL.Path == "/healthz/ready" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(`{"status":"ok","server":"s3gw"}`))
			}
			return
		}

		// S3 clients occasionally add a trailing slash to bucket paths;
		// strip it so routing doesn't have to special-case it.
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		s.mux.ServeHTTP(w, r)
	})
}

// Stop stops the server immediately.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("close server: %w", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}

	s.config.Logger.Info("s3gw server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	stor := s.storage
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	if stor != nil {
		if err := stor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}

	s.config.Logger.Info("s3gw server shutdown complete")
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Running returns true if the server is running.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Storage returns the underlying storage backend.
func (s *Server) Storage() storage.Storage {
	return s.storage
}
