package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"soil-platform/pkg/logging"
)

// RouterOptions configures the middleware around the API routes
type RouterOptions struct {
	// CORSOrigins enables CORS for the listed origins when non-empty
	CORSOrigins []string
	// AccessLog receives Apache-style access lines when set
	AccessLog   io.Writer
	// Metrics is mounted on /metrics when set
	Metrics     http.Handler
}

// NewRouter registers the soil API on a fresh router and wraps it in the outer middleware
func NewRouter(h *SoilHandler, opts RouterOptions) http.Handler {
	router := mux.NewRouter()
	router.Use(RequestID)

	h.RegisterRoutes(router)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	return wrap(router, opts, h.logger)
}

func wrap(next http.Handler, opts RouterOptions, logger *logging.StructuredLogger) http.Handler {
	handler := gorillahandlers.CompressHandler(next)

	if len(opts.CORSOrigins) > 0 {
		handler = gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(opts.CORSOrigins),
			gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			gorillahandlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
			gorillahandlers.ExposedHeaders([]string{RequestIDHeader}),
		)(handler)
	}

	if opts.AccessLog != nil {
		handler = gorillahandlers.LoggingHandler(opts.AccessLog, handler)
	}

	return gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(panicLogger{logger}),
	)(handler)
}

// panicLogger routes recovered panics into the structured log
type panicLogger struct {
	logger *logging.StructuredLogger
}

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Error(context.Background(), "[PANIC] Recovered from handler panic", logging.Fields{
		"panic": fmt.Sprint(v...),
	}, nil)
}
