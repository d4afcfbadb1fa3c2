// Package api is the HTTP surface: conversion submission, status polling,
// format discovery and operational endpoints.
package api

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"converter/admission"
	"converter/config"
	"converter/format"
	"converter/metrics"
	"converter/models"
)

// RecordStore is the slice of the record store the API reads and writes.
type RecordStore interface {
	Create(ctx context.Context, rec *models.ConversionRecord) error
	Get(ctx context.Context, id string) (*models.ConversionRecord, error)
}

// Enqueuer hands admitted jobs to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Uploader stages the inbound payload before the job is enqueued.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      *config.Config
	gate     *admission.Gate
	store    RecordStore
	queue    Enqueuer
	blobs    Uploader
	registry *format.Registry
	rules    *format.Rules
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	health   []Pinger
}

func NewServer(
	cfg *config.Config,
	gate *admission.Gate,
	store RecordStore,
	queue Enqueuer,
	blobs Uploader,
	registry *format.Registry,
	rules *format.Rules,
	m *metrics.Metrics,
	health ...Pinger,
) *Server {
	return &Server{
		cfg:      cfg,
		gate:     gate,
		store:    store,
		queue:    queue,
		blobs:    blobs,
		registry: registry,
		rules:    rules,
		metrics:  m,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
		health:   health,
	}
}

// Handler wires the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/convert", s.rateLimited(s.handleConvert))
	mux.HandleFunc("GET /api/conversions/{id}", s.handleGetConversion)
	mux.HandleFunc("GET /api/formats", s.handleListFormats)
	mux.HandleFunc("GET /api/formats/{category}", s.handleFormatsByCategory)
	mux.HandleFunc("GET /api/formats/{id}/targets", s.handleFormatTargets)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return mux
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			if s.metrics != nil {
				s.metrics.RecordRateLimited()
			}
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next(w, r)
	}
}
