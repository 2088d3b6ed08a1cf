package http

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router wires into handlers. Only Users is required.
type Deps struct {
	Users    handlers.UsersStore
	Cache    cache.Store
	Notifier notifications.Notifier
	Prom     *observability.Prom
	Metrics  http.Handler
	Ready    []handlers.ReadinessCheck
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimitRequests > 0 {
		rl := middlewares.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		r.Use(rl.RateLimiterMiddleware(middlewares.KeyByIP))
	}
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(deps.Ready...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	r.GET("/", handlers.Home)

	opts := []handlers.UsersHandlerOption{handlers.WithQueryTimeout(cfg.QueryTimeout)}
	if deps.Cache != nil {
		opts = append(opts, handlers.WithCache(deps.Cache))
	}
	if deps.Notifier != nil {
		opts = append(opts, handlers.WithNotifier(deps.Notifier))
	}
	if deps.Prom != nil {
		opts = append(opts, handlers.WithProm(deps.Prom))
	}
	users := handlers.NewUsersHandler(deps.Users, opts...)

	r.POST("/users", users.CreateUser)
	r.GET("/users", users.ListUsers)
	r.GET("/users/:id", users.GetUser)
	r.PUT("/users/:id", users.UpdateUser)
	r.DELETE("/users/:id", users.DeleteUser)

	return r
}
