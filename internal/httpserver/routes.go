package httpserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/api/eventsubcallback", s.webhookHandler)

	s.echo.GET("/api/profile_name", s.handleProfileName)
	s.echo.GET("/api/profile_list", s.handleProfileList)
	s.echo.GET("/api/client_id", s.handleClientID)

	s.echo.GET("/api/user_names", s.handleUserNames)
	s.echo.GET("/api/user_list", s.handleUserList)
	s.echo.GET("/api/description", s.handleGetDescription)
	s.echo.GET("/api/online_count", s.handleOnlineCount)
	s.echo.GET("/api/stream_infos", s.handleStreamInfos)

	s.echo.POST("/api/user", s.handleAddUser, s.requireKey)
	s.echo.DELETE("/api/user", s.handleRemoveUser, s.requireKey)
	s.echo.POST("/api/description", s.handleSetDescription, s.requireKey)
	s.echo.DELETE("/api/description", s.handleDeleteDescription, s.requireKey)
	s.echo.POST("/api/reset_subscriptions", s.handleResetSubscriptions, s.requireKey)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}

// requireKey guards the mutating endpoints with the shared API key. Without a
// configured key the endpoints stay closed.
func (s *Server) requireKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.APIKey == "" {
			return c.JSON(http.StatusForbidden, errorResponse("api key access is not configured"))
		}
		key := c.Request().Header.Get("X-Api-Key")
		if key == "" {
			key = c.QueryParam("key")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
			return c.JSON(http.StatusUnauthorized, errorResponse("invalid api key"))
		}
		return next(c)
	}
}
