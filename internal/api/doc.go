// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - GET /api/search runs a keyword, vector or weighted search.
//   - GET /api/weights shows the field weights derived for a query.
//   - GET /api/ai_stream_search streams filter suggestions as server-sent events.
//   - POST /api/init rebuilds the search corpus from stored results.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
