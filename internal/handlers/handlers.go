// Package handlers serves the dashboard JSON API. Every page endpoint follows
// the same flow: authenticate, resolve the organization, load the provider
// config, call the provider and shape the response.
package handlers

import (
	"context"
	"time"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/connect"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/opengraph"
	"github.com/zfogg/beacon/internal/publish"
	"github.com/zfogg/beacon/internal/reports"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth    *auth.Service
	configs integrations.Store
	connect *connect.Service
	publish *publish.Service
	reports *reports.Service
	og      *opengraph.Service
	checks  map[string]HealthCheck
	service string
	now     func() time.Time
}

// Options are the services the handlers call into.
type Options struct {
	Auth    *auth.Service
	Configs integrations.Store
	Connect *connect.Service
	Publish *publish.Service
	Reports *reports.Service
	OG      *opengraph.Service
	Checks  map[string]HealthCheck
	Service string
}

// NewHandlers creates a new handlers instance
func NewHandlers(opts Options) *Handlers {
	name := opts.Service
	if name == "" {
		name = "beacon-api"
	}
	return &Handlers{
		auth:    opts.Auth,
		configs: opts.Configs,
		connect: opts.Connect,
		publish: opts.Publish,
		reports: opts.Reports,
		og:      opts.OG,
		checks:  opts.Checks,
		service: name,
		now:     time.Now,
	}
}
