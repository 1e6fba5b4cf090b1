package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_requests_total",
		Help: "HTTP requests served, by route, method and status code.",
	}, []string{"route", "method", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_request_duration_seconds",
		Help:    "HTTP request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	faqLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_faq_lookups_total",
		Help: "FAQ lookups served, by result (matched or unmatched).",
	}, []string{"result"})

	leadsSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_leads_saved_total",
		Help: "Leads persisted through the API.",
	})

	tokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_tokens_issued_total",
		Help: "Connection details issued, by mode (local or sandbox).",
	}, []string{"mode"})
)
