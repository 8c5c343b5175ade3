// Package beacon is the API behind the Beacon marketing dashboard: it connects
// an organization's Google, Facebook, Instagram, LinkedIn and Webflow accounts,
// reports their analytics, publishes posts to them and renders Open Graph
// images from templates.
//
// The code is organized into subpackages:
//
//   - cmd/server: the HTTP API
//   - cmd/migrate, cmd/seed, cmd/cli: operator tooling
//   - internal/handlers: HTTP request handlers and routes
//   - internal/middleware: auth, rate limiting, logging, metrics and tracing
//   - internal/auth: users, organizations, members and sessions
//   - internal/integrations: stored provider configurations
//   - internal/connect: OAuth and token connections
//   - internal/providers: provider API clients
//   - internal/publish: multi-platform publishing
//   - internal/reports: analytics and social overviews
//   - internal/opengraph: Open Graph templates and rendering
//   - internal/kernel: dependency wiring
//
// See the individual package documentation for details.
package beacon
