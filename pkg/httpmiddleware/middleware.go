// Package httpmiddleware assembles the chi middleware stack used by the
// operational HTTP server.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lewisedginton/financial_qa/pkg/logger"
	"github.com/unrolled/secure"
)

// CORSConfig represents CORS configuration options
type CORSConfig struct {
	AllowedMethods []string
	AllowedHeaders []string
	AllowedOrigins []string
	MaxAge         int
}

// DefaultCORSConfig allows the read and admin verbs the server exposes.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "X-Correlation-ID"},
		AllowedOrigins: []string{"https://*", "http://*"},
		MaxAge:         300,
	}
}

// Config selects the middleware applied by Apply.
type Config struct {
	Logger   logger.Logger // nil disables request logging
	Timeout  time.Duration // zero disables the request timeout
	CORS     *CORSConfig   // nil disables CORS handling
	Security *secure.Options
}

// DefaultConfig returns the production stack with a 30s request timeout.
func DefaultConfig(log logger.Logger) Config {
	c := DefaultCORSConfig()
	return Config{
		Logger:   log,
		Timeout:  30 * time.Second,
		CORS:     &c,
		Security: &secure.Options{FrameDeny: true, ContentTypeNosniff: true, BrowserXssFilter: true},
	}
}

// Apply installs the stack in execution order: request id, real ip, security
// headers, logging, recovery, CORS, timeout.
func Apply(router chi.Router, cfg Config) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(Security(cfg.Security))
	if cfg.Logger != nil {
		router.Use(cfg.Logger.HTTPMiddleware)
		router.Use(Recovery(cfg.Logger))
	} else {
		router.Use(middleware.Recoverer)
	}
	if cfg.CORS != nil {
		router.Use(CORS(*cfg.CORS))
	}
	if cfg.Timeout > 0 {
		router.Use(middleware.Timeout(cfg.Timeout))
	}
}

// CORS middleware configures Cross-Origin Resource Sharing
func CORS(c CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods: c.AllowedMethods,
		AllowedHeaders: c.AllowedHeaders,
		AllowedOrigins: c.AllowedOrigins,
		MaxAge:         c.MaxAge,
	})
}

// Security middleware adds security headers
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		return secure.New().Handler
	}
	return secure.New(*opts).Handler
}
