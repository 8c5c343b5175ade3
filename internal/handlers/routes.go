package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/beacon/internal/middleware"
)

// RouterConfig configures the middleware stack.
type RouterConfig struct {
	AllowedOrigins []string
	ServiceName    string
	Tracing        bool
	// RateCounter shares rate limits between instances. Nil limits per process.
	RateCounter middleware.Counter
	// FilesDir is served under /files when objects are stored on disk.
	FilesDir string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", "X-Correlation-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Correlation-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	if cfg.Tracing {
		r.Use(middleware.TracingMiddleware(cfg.ServiceName))
	}
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedExtensions([]string{".png"}),
	))

	apiLimit := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), cfg.RateCounter).Middleware()
	authLimit := middleware.NewRateLimiter(middleware.AuthRateLimitConfig(), cfg.RateCounter).Middleware()
	publishLimit := middleware.NewRateLimiter(middleware.PublishRateLimitConfig(), cfg.RateCounter).Middleware()
	renderLimit := middleware.NewRateLimiter(middleware.RenderRateLimitConfig(), cfg.RateCounter).Middleware()

	requireAuth := middleware.RequireAuth(h.auth)
	requireMember := middleware.RequireMember(h.auth)
	requireManager := middleware.RequireManager()

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/og/:file", renderLimit, h.PublicImage)
	if cfg.FilesDir != "" {
		r.Static("/files", cfg.FilesDir)
	}

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authLimit, h.Register)
			authGroup.POST("/login", authLimit, h.Login)

			session := authGroup.Group("", requireAuth, apiLimit)
			session.GET("/me", h.Me)
			session.POST("/2fa/setup", h.SetupTOTP)
			session.POST("/2fa/enable", h.EnableTOTP)
			session.POST("/2fa/disable", h.DisableTOTP)
		}

		// OAuth providers redirect here without a session; the signed state
		// identifies the organization.
		api.GET("/connect/:provider/callback", h.ConnectCallback)

		api.POST("/invitations/:token/accept", requireAuth, apiLimit, h.AcceptInvitation)

		orgs := api.Group("/orgs", requireAuth, apiLimit)
		{
			orgs.GET("", h.ListOrganizations)
			orgs.POST("", h.CreateOrganization)
		}

		org := api.Group("/orgs/:org", requireAuth, apiLimit, requireMember)
		{
			org.GET("", h.GetOrganization)
			org.GET("/members", h.ListMembers)
			org.POST("/invitations", requireManager, h.InviteMember)

			org.GET("/dashboard", h.Dashboard)
			org.GET("/analytics", h.Analytics)
			org.GET("/analytics/pagespeed", h.PageSpeed)
			org.GET("/social/:provider", h.SocialOverview)

			org.GET("/connections", h.ListConnections)
			org.POST("/connections/webflow", requireManager, h.ConnectWebflow)
			org.GET("/connections/:provider", h.GetConnection)
			org.DELETE("/connections/:provider", requireManager, h.Disconnect)
			org.PATCH("/connections/:provider/settings", requireManager, h.UpdateConnectionSettings)
			org.GET("/connect/:provider", requireManager, h.BeginConnect)

			org.POST("/posts", publishLimit, h.CreatePost)
			org.GET("/posts", h.ListPosts)
			org.GET("/posts/:id", h.GetPost)

			og := org.Group("/og")
			og.POST("/preview", h.PreviewTemplate)
			og.GET("/templates", h.ListTemplates)
			og.POST("/templates", h.CreateTemplate)
			og.GET("/templates/:id", h.GetTemplate)
			og.PUT("/templates/:id", h.UpdateTemplate)
			og.DELETE("/templates/:id", h.DeleteTemplate)
			og.POST("/templates/:id/render", h.RenderTemplate)
			og.PATCH("/templates/:id/elements/:element", h.EditElement)
		}
	}

	return r
}
