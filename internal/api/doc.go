// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - POST /functions/v1/content-writing-unified and content-writing-workflow
//     run the article workflow (also mounted without the prefix).
//   - POST /functions/v1/lobstr-scraper runs one scrape run operation.
//   - GET /v1/executions/{id} returns execution progress.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
//
// Every response carries permissive CORS headers and OPTIONS requests are
// answered with a bare 200 "ok".
package api
