package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/mchub-dev/mchub/api/echo"
	"github.com/mchub-dev/mchub/config"
	"github.com/mchub-dev/mchub/log"
)

// NewHTTPServer creates and configures the Echo HTTP server hosting the
// linking API and the metrics endpoint.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, linkAPI *echoapi.LinkAPI, registry *prometheus.Registry) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())

	// Structured request logging through the injected logger.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "HTTP request", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "HTTP request", fields)
			}
			return err
		}
	})

	// Overall request deadline; individual exchange hops carry their own
	// shorter client timeout.
	if cfg.RequestDeadline > 0 {
		e.Use(echomw.TimeoutWithConfig(echomw.TimeoutConfig{
			Timeout: cfg.RequestDeadline,
		}))
	}

	linkAPI.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
