// Package api hosts the HTTP server, middleware, and REST handlers for jobscout.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sites lists active adapters.
//   - GET /v1/listings queries stored listings with the filter keys title, company,
//     job_type, location, source_site, is_active plus limit and offset.
//   - POST /v1/scrape and POST /v1/scrape/{site} run scrapes synchronously.
package api
