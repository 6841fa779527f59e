package handlers

import (
	"net/http"
	"strconv"

	"github.com/tendant/motion-compare/internal/auth"
	"github.com/tendant/motion-compare/internal/metrics"
)

// Routes wires the HTTP API
type Routes struct {
	Compare *CompareHandler
	Async   *AsyncHandler
	// Verifier guards comparison endpoints when set
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
}

// Handler builds the mux
func (rt Routes) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", rt.count("/health", http.HandlerFunc(HandleHealth)))
	mux.Handle("/metrics", rt.Metrics.Handler())

	if rt.Compare != nil {
		h := rt.protect(http.HandlerFunc(rt.Compare.HandleCompare))
		mux.Handle("/compare-videos/", rt.count("/compare-videos/", h))
		mux.Handle("/v1/compare", rt.count("/v1/compare", h))
	}
	if rt.Async != nil {
		mux.Handle("/v1/compare/async", rt.count("/v1/compare/async",
			rt.protect(http.HandlerFunc(rt.Async.HandleCompareAsync))))
		mux.Handle("/v1/runs/", rt.count("/v1/runs",
			rt.protect(http.HandlerFunc(rt.Async.HandleStatus))))
	}
	return mux
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (rt Routes) protect(h http.Handler) http.Handler {
	if rt.Verifier == nil {
		return h
	}
	return rt.Verifier.Middleware(h)
}

func (rt Routes) count(route string, h http.Handler) http.Handler {
	if rt.Metrics == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		rt.Metrics.CountRequest(route, strconv.Itoa(sw.status))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
