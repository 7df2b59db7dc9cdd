package server

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/internal/server/middlewares"
	"github.com/mdouchement/writersync/internal/server/session"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/mdouchement/writersync/pkg/libsync"
	"golang.org/x/time/rate"
)

// An IOC is an Iversion Of Control pattern used to init the server package.
type IOC struct {
	Version        string
	Database       database.Client
	NoRegistration bool
	// JWT params
	SigningKey []byte
	TokenTTL   time.Duration
	// AuthRateLimit is the number of register/login requests per second allowed per client IP.
	// Zero disables the limiter.
	AuthRateLimit float64
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl IOC) *echo.Echo {
	engine := echo.New()
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	engine.Use(middleware.Gzip())

	engine.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${status}] ${method} ${uri} (${bytes_in}) ${latency_human}\n",
	}))
	engine.Binder = middlewares.NewBinder()
	// Error handler
	engine.HTTPErrorHandler = middlewares.HTTPErrorHandler

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	metrics := newMetrics()
	engine.Use(metrics.Middleware)

	////////////
	// Router //
	////////////

	sessions := session.NewManager(ctrl.Database, ctrl.SigningKey, ctrl.TokenTTL)

	router := engine.Group("")
	restricted := router.Group("")
	restricted.Use(middlewares.Session(sessions))

	// generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})
	router.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":    "ok",
			"timestamp": libsync.FormatTime(time.Now()),
		})
	})
	router.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	//
	// auth handlers
	//
	public := router.Group("/auth")
	if ctrl.AuthRateLimit > 0 {
		public.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(ctrl.AuthRateLimit),
				Burst: int(math.Max(1, math.Ceil(ctrl.AuthRateLimit))),
			}),
			DenyHandler: func(echo.Context, string, error) error {
				return sferror.NewWithCode(http.StatusTooManyRequests, "Too many requests")
			},
		}))
	}

	auth := &auth{
		db:       ctrl.Database,
		sessions: sessions,
	}
	if !ctrl.NoRegistration {
		public.POST("/register", auth.Register)
	}
	public.POST("/login", auth.Login)

	//
	// master key handlers
	//
	masterKey := &masterKey{
		db: ctrl.Database,
	}
	restricted.GET("/auth/master-key", masterKey.Show)
	restricted.POST("/auth/master-key", masterKey.Create)
	restricted.POST("/auth/change-master-key-password", masterKey.ChangePassword)

	//
	// sync handlers
	//
	sync := &sync{
		db:      ctrl.Database,
		metrics: metrics,
	}
	restricted.POST("/sync/push", sync.Push)
	restricted.GET("/sync/changes", sync.Changes)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}

func currentUser(c echo.Context) *model.User {
	user, ok := c.Get(middlewares.CurrentUserContextKey).(*model.User)
	if ok {
		return user
	}
	return nil
}
