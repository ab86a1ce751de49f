package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/platform/config"
)

type fakeTwitch struct {
	users   []domain.UserInfo
	streams []domain.StreamInfo
	err     error
}

func (f *fakeTwitch) UsersByLogin(_ context.Context, logins []string) ([]domain.UserInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.UserInfo
	for _, u := range f.users {
		for _, login := range logins {
			if u.Login == login {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeTwitch) StreamsByLogin(_ context.Context, _ []string) ([]domain.StreamInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.streams, nil
}

type fakeRoster struct {
	logins map[string][]string
}

func (f *fakeRoster) Logins(profile string) []string { return f.logins[profile] }

func (f *fakeRoster) Contains(profile, login string) bool {
	for _, l := range f.logins[profile] {
		if l == login {
			return true
		}
	}
	return false
}

func (f *fakeRoster) Add(profile, login string) (bool, error) {
	if f.Contains(profile, login) {
		return false, nil
	}
	f.logins[profile] = append(f.logins[profile], login)
	return true, nil
}

func (f *fakeRoster) Remove(profile, login string) (bool, error) {
	for i, l := range f.logins[profile] {
		if l == login {
			f.logins[profile] = append(f.logins[profile][:i], f.logins[profile][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeDescriptions struct {
	data map[string]string
}

func (f *fakeDescriptions) Get(_, login string) (string, bool) {
	text, ok := f.data[login]
	return text, ok
}

func (f *fakeDescriptions) Set(_, login, text string) error {
	f.data[login] = text
	return nil
}

func (f *fakeDescriptions) Delete(_, login string) error {
	delete(f.data, login)
	return nil
}

type fakeProfiles struct {
	profiles []domain.Profile
}

func (f *fakeProfiles) All() []domain.Profile { return f.profiles }

func (f *fakeProfiles) ByID(id string) (domain.Profile, bool) {
	for _, p := range f.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Profile{}, false
}

func (f *fakeProfiles) ByDomain(host string) (domain.Profile, bool) {
	for _, p := range f.profiles {
		for _, d := range p.Domains {
			if d == host {
				return p, true
			}
		}
	}
	return domain.Profile{}, false
}

type serverFixture struct {
	server  *Server
	twitch  *fakeTwitch
	roster  *fakeRoster
	desc    *fakeDescriptions
	bus     *bus.Bus
	emitted *[]domain.Event
}

func newServerFixture() *serverFixture {
	b := bus.New()
	var emitted []domain.Event
	b.On(domain.EventUserAdded, func(e domain.Event) { emitted = append(emitted, e) })
	b.On(domain.EventUserRemoved, func(e domain.Event) { emitted = append(emitted, e) })
	b.On(domain.EventResetAllSubscriptions, func(e domain.Event) { emitted = append(emitted, e) })

	tw := &fakeTwitch{users: []domain.UserInfo{
		{ID: "42", Login: "durss", DisplayName: "Durss"},
		{ID: "43", Login: "other", DisplayName: "Other"},
	}}
	roster := &fakeRoster{logins: map[string][]string{"default": {"durss"}}}
	desc := &fakeDescriptions{data: map[string]string{"durss": "Speedruns"}}
	profiles := &fakeProfiles{profiles: []domain.Profile{
		{ID: "default"},
		{ID: "acme", Domains: []string{"raider.acme.example.com"}},
	}}

	cfg := &config.Config{Port: "3012", APIKey: "test-api-key", TwitchClientID: "client-id-123"}
	webhook := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	srv := NewServer(cfg, tw, roster, desc, profiles, b, webhook)

	return &serverFixture{server: srv, twitch: tw, roster: roster, desc: desc, bus: b, emitted: &emitted}
}

func (fx *serverFixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	fx.server.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleUserNames(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodGet, "/api/user_names")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"durss"}, body["data"])
}

func TestHandleUserList_IncludesDescriptions(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodGet, "/api/user_list")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	entries := body["data"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "durss", entry["login"])
	assert.Equal(t, "Speedruns", entry["raider_description"])
}

func TestHandleOnlineCount(t *testing.T) {
	fx := newServerFixture()
	fx.twitch.streams = []domain.StreamInfo{{UserLogin: "durss", ViewerCount: 10}}

	rec := fx.do(http.MethodGet, "/api/online_count")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["data"])
}

func TestHandleStreamInfos_EmptyRoster(t *testing.T) {
	fx := newServerFixture()
	fx.roster.logins = map[string][]string{}

	rec := fx.do(http.MethodGet, "/api/stream_infos")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["data"])
}

func TestHandleAddUser_RequiresKey(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/user?login=other")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = fx.do(http.MethodPost, "/api/user?login=other&key=wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, *fx.emitted)
}

func TestHandleAddUser(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/user?login=other&key=test-api-key")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fx.roster.Contains("default", "other"))
	require.Len(t, *fx.emitted, 1)
	assert.Equal(t, domain.Event{Type: domain.EventUserAdded, Profile: "default", BroadcasterID: "43"}, (*fx.emitted)[0])
}

func TestHandleAddUser_UnknownTwitchUser(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/user?login=ghost&key=test-api-key")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, *fx.emitted)
}

func TestHandleAddUser_Duplicate(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/user?login=durss&key=test-api-key")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, *fx.emitted)
}

func TestHandleRemoveUser(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodDelete, "/api/user?login=durss&key=test-api-key")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fx.roster.Contains("default", "durss"))
	require.Len(t, *fx.emitted, 1)
	assert.Equal(t, domain.EventUserRemoved, (*fx.emitted)[0].Type)
}

func TestHandleRemoveUser_UnresolvedUserStillRemoved(t *testing.T) {
	fx := newServerFixture()
	fx.twitch.err = errors.New("helix is down")

	rec := fx.do(http.MethodDelete, "/api/user?login=durss&key=test-api-key")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fx.roster.Contains("default", "durss"))
	assert.Empty(t, *fx.emitted, "unsubscribe is skipped when the id cannot be resolved")
}

func TestHandleResetSubscriptions(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/reset_subscriptions")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, *fx.emitted)

	rec = fx.do(http.MethodPost, "/api/reset_subscriptions?key=test-api-key&profile=acme")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *fx.emitted, 1)
	assert.Equal(t, domain.Event{Type: domain.EventResetAllSubscriptions, Profile: "acme"}, (*fx.emitted)[0])

	rec = fx.do(http.MethodPost, "/api/reset_subscriptions?key=test-api-key&all=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *fx.emitted, 2)
	assert.Equal(t, "", (*fx.emitted)[1].Profile, "all=true resets the whole deployment")
}

func TestHandleProfileHelpers(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodGet, "/api/profile_name?profile=acme")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", decodeBody(t, rec)["data"])

	rec = fx.do(http.MethodGet, "/api/profile_list")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"default", "acme"}, decodeBody(t, rec)["data"])

	rec = fx.do(http.MethodGet, "/api/client_id")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "client-id-123", decodeBody(t, rec)["data"])
}

func TestHandleDescriptionLifecycle(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodGet, "/api/description?login=durss")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Speedruns", decodeBody(t, rec)["data"])

	rec = fx.do(http.MethodPost, "/api/description?login=durss&description=New+text&key=test-api-key")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New text", fx.desc.data["durss"])

	rec = fx.do(http.MethodDelete, "/api/description?login=durss&key=test-api-key")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(http.MethodGet, "/api/description?login=durss")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetDescription_UnknownUser(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodPost, "/api/description?login=ghost&description=text&key=test-api-key")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileResolution(t *testing.T) {
	fx := newServerFixture()
	fx.roster.logins["acme"] = []string{"other"}

	// Explicit query parameter wins.
	rec := fx.do(http.MethodGet, "/api/user_names?profile=acme")
	assert.Equal(t, []any{"other"}, decodeBody(t, rec)["data"])

	// Host header resolves through the profile catalog.
	req := httptest.NewRequest(http.MethodGet, "/api/user_names", nil)
	req.Host = "raider.acme.example.com"
	rec = httptest.NewRecorder()
	fx.server.echo.ServeHTTP(rec, req)
	assert.Equal(t, []any{"other"}, decodeBody(t, rec)["data"])

	// Unknown profile falls back to the default.
	rec = fx.do(http.MethodGet, "/api/user_names?profile=nope")
	assert.Equal(t, []any{"durss"}, decodeBody(t, rec)["data"])
}

func TestHandleHealth(t *testing.T) {
	fx := newServerFixture()

	rec := fx.do(http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRequireKey_NotConfigured(t *testing.T) {
	fx := newServerFixture()
	fx.server.config.APIKey = ""

	rec := fx.do(http.MethodPost, "/api/user?login=other")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
