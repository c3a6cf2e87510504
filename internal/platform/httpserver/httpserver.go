package httpserver

import (
	"net/http"
	"time"
)

// New builds the operator API server. No WriteTimeout: a synchronous
// pipeline run holds the response for as long as its remote calls take.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
