// Package httpserver exposes the public JSON API, the EventSub webhook
// endpoint and the operational endpoints.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/platform/config"
)

type twitchService interface {
	UsersByLogin(ctx context.Context, logins []string) ([]domain.UserInfo, error)
	StreamsByLogin(ctx context.Context, logins []string) ([]domain.StreamInfo, error)
}

type rosterService interface {
	Logins(profile string) []string
	Contains(profile, login string) bool
	Add(profile, login string) (bool, error)
	Remove(profile, login string) (bool, error)
}

type descriptionService interface {
	Get(profile, login string) (string, bool)
	Set(profile, login, text string) error
	Delete(profile, login string) error
}

type profileResolver interface {
	All() []domain.Profile
	ByID(id string) (domain.Profile, bool)
	ByDomain(host string) (domain.Profile, bool)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	twitch       twitchService
	roster       rosterService
	descriptions descriptionService
	profiles     profileResolver
	events       *bus.Bus

	webhookHandler echo.HandlerFunc

	startTime time.Time
}

func NewServer(cfg *config.Config, tw twitchService, roster rosterService, descriptions descriptionService, profiles profileResolver, events *bus.Bus, webhookHandler echo.HandlerFunc) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		twitch:         tw,
		roster:         roster,
		descriptions:   descriptions,
		profiles:       profiles,
		events:         events,
		webhookHandler: webhookHandler,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// profileID resolves the tenant for a request: explicit query parameter
// first, then the Host header against the profile catalog, then the default.
func (s *Server) profileID(c echo.Context) string {
	if id := c.QueryParam("profile"); id != "" {
		if _, ok := s.profiles.ByID(id); ok {
			return id
		}
	}
	if prof, ok := s.profiles.ByDomain(c.Request().Host); ok {
		return prof.ID
	}
	return domain.DefaultProfileID
}
