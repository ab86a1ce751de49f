package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Durss/streamerRaider/internal/domain"
)

func dataResponse(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func errorResponse(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}

type userEntry struct {
	domain.UserInfo
	RaiderDescription string `json:"raider_description,omitempty"`
}

func (s *Server) handleProfileName(c echo.Context) error {
	return c.JSON(http.StatusOK, dataResponse(s.profileID(c)))
}

func (s *Server) handleProfileList(c echo.Context) error {
	profiles := s.profiles.All()
	ids := make([]string, 0, len(profiles))
	for _, prof := range profiles {
		ids = append(ids, prof.ID)
	}
	return c.JSON(http.StatusOK, dataResponse(ids))
}

func (s *Server) handleClientID(c echo.Context) error {
	return c.JSON(http.StatusOK, dataResponse(s.config.TwitchClientID))
}

func (s *Server) handleUserNames(c echo.Context) error {
	profile := s.profileID(c)
	return c.JSON(http.StatusOK, dataResponse(s.roster.Logins(profile)))
}

func (s *Server) handleUserList(c echo.Context) error {
	ctx := c.Request().Context()
	profile := s.profileID(c)

	logins := s.roster.Logins(profile)
	if len(logins) == 0 {
		return c.JSON(http.StatusOK, dataResponse([]userEntry{}))
	}

	users, err := s.twitch.UsersByLogin(ctx, logins)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse("failed to load users from twitch"))
	}

	entries := make([]userEntry, 0, len(users))
	for _, user := range users {
		entry := userEntry{UserInfo: user}
		if text, ok := s.descriptions.Get(profile, user.Login); ok {
			entry.RaiderDescription = text
		}
		entries = append(entries, entry)
	}
	return c.JSON(http.StatusOK, dataResponse(entries))
}

func (s *Server) handleGetDescription(c echo.Context) error {
	profile := s.profileID(c)

	login := loginParam(c)
	if login == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing login parameter"))
	}

	text, ok := s.descriptions.Get(profile, login)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse("no description for this user"))
	}
	return c.JSON(http.StatusOK, dataResponse(text))
}

func (s *Server) handleOnlineCount(c echo.Context) error {
	ctx := c.Request().Context()
	profile := s.profileID(c)

	logins := s.roster.Logins(profile)
	if len(logins) == 0 {
		return c.JSON(http.StatusOK, dataResponse(0))
	}

	streams, err := s.twitch.StreamsByLogin(ctx, logins)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse("failed to load streams from twitch"))
	}
	return c.JSON(http.StatusOK, dataResponse(len(streams)))
}

func (s *Server) handleStreamInfos(c echo.Context) error {
	ctx := c.Request().Context()
	profile := s.profileID(c)

	logins := s.roster.Logins(profile)
	if len(logins) == 0 {
		return c.JSON(http.StatusOK, dataResponse([]domain.StreamInfo{}))
	}

	streams, err := s.twitch.StreamsByLogin(ctx, logins)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse("failed to load streams from twitch"))
	}
	return c.JSON(http.StatusOK, dataResponse(streams))
}

func (s *Server) handleAddUser(c echo.Context) error {
	ctx := c.Request().Context()
	profile := s.profileID(c)

	login := loginParam(c)
	if login == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing login parameter"))
	}

	users, err := s.twitch.UsersByLogin(ctx, []string{login})
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse("failed to verify user on twitch"))
	}
	if len(users) == 0 {
		return c.JSON(http.StatusNotFound, errorResponse(fmt.Sprintf("twitch user %q does not exist", login)))
	}
	user := users[0]

	added, err := s.roster.Add(profile, user.Login)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to save roster"))
	}
	if !added {
		return c.JSON(http.StatusConflict, errorResponse("user is already on the list"))
	}

	s.events.Emit(domain.Event{Type: domain.EventUserAdded, Profile: profile, BroadcasterID: user.ID})
	return c.JSON(http.StatusOK, dataResponse(user))
}

func (s *Server) handleRemoveUser(c echo.Context) error {
	ctx := c.Request().Context()
	profile := s.profileID(c)

	login := loginParam(c)
	if login == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing login parameter"))
	}

	removed, err := s.roster.Remove(profile, login)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to save roster"))
	}
	if !removed {
		return c.JSON(http.StatusNotFound, errorResponse("user is not on the list"))
	}

	if users, err := s.twitch.UsersByLogin(ctx, []string{login}); err == nil && len(users) > 0 {
		s.events.Emit(domain.Event{Type: domain.EventUserRemoved, Profile: profile, BroadcasterID: users[0].ID})
	} else {
		// The remote subscription stays behind until the next reset.
		slog.Warn("Removed roster entry but could not resolve its id for unsubscribe", "login", login, "error", err)
	}
	return c.JSON(http.StatusOK, dataResponse(login))
}

// handleResetSubscriptions triggers the upstream cleanup for the resolved
// tenant, or for the whole deployment with all=true.
func (s *Server) handleResetSubscriptions(c echo.Context) error {
	profile := s.profileID(c)
	if c.QueryParam("all") == "true" {
		profile = ""
	}
	s.events.Emit(domain.Event{Type: domain.EventResetAllSubscriptions, Profile: profile})
	return c.JSON(http.StatusOK, dataResponse(profile))
}

func (s *Server) handleSetDescription(c echo.Context) error {
	profile := s.profileID(c)

	login := loginParam(c)
	if login == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing login parameter"))
	}
	text := strings.TrimSpace(c.QueryParam("description"))
	if text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing description parameter"))
	}

	if !s.roster.Contains(profile, login) {
		return c.JSON(http.StatusNotFound, errorResponse("user is not on the list"))
	}
	if err := s.descriptions.Set(profile, login, text); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to save description"))
	}
	return c.JSON(http.StatusOK, dataResponse(text))
}

func (s *Server) handleDeleteDescription(c echo.Context) error {
	profile := s.profileID(c)

	login := loginParam(c)
	if login == "" {
		return c.JSON(http.StatusBadRequest, errorResponse("missing login parameter"))
	}

	if err := s.descriptions.Delete(profile, login); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to save description"))
	}
	return c.JSON(http.StatusOK, dataResponse(login))
}

func loginParam(c echo.Context) string {
	return strings.ToLower(strings.TrimSpace(c.QueryParam("login")))
}
