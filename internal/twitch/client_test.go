package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTwitch struct {
	t *testing.T

	tokenRequests atomic.Int32
	apiHandler    http.HandlerFunc

	auth *httptest.Server
	api  *httptest.Server
}

func newFakeTwitch(t *testing.T) *fakeTwitch {
	f := &fakeTwitch{t: t}

	f.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("token-%d", f.tokenRequests.Load()),
			"expires_in":   3600,
		})
	}))
	t.Cleanup(f.auth.Close)

	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiHandler(w, r)
	}))
	t.Cleanup(f.api.Close)

	return f
}

func (f *fakeTwitch) client() *Client {
	return New("client-id", "client-secret", WithBaseURLs(f.api.URL, f.auth.URL))
}

func TestClient_TokenIsCachedAcrossCalls(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}
	c := f.client()

	_, err := c.StreamByUserID(context.Background(), "42")
	require.NoError(t, err)
	_, err = c.StreamByUserID(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokenRequests.Load())
}

func TestClient_RefreshesTokenOn401AndRetriesOnce(t *testing.T) {
	f := newFakeTwitch(t)

	var apiCalls atomic.Int32
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			// Token expired earlier than advertised.
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}
	c := f.client()

	_, err := c.StreamByUserID(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(2), f.tokenRequests.Load())
}

func TestClient_Persistent401SurfacesAPIError(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	c := f.client()

	_, err := c.StreamByUserID(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClient_StreamByUserID(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/streams", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"user_id":      "42",
				"user_login":   "durssbot",
				"user_name":    "DurssBot",
				"game_name":    "Science & Technology",
				"title":        "making stuff",
				"viewer_count": 117,
				"started_at":   "2021-10-25T12:22:29Z",
			}},
		})
	}
	c := f.client()

	info, err := c.StreamByUserID(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "DurssBot", info.UserName)
	assert.Equal(t, 117, info.ViewerCount)
	assert.Equal(t, 2021, info.StartedAt.Year())
}

func TestClient_StreamByUserID_OfflineReturnsNil(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}
	c := f.client()

	info, err := c.StreamByUserID(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestClient_UsersByLogin(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, []string{"durssbot", "otherbot"}, r.URL.Query()["login"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "42", "login": "durssbot", "display_name": "DurssBot"},
			},
		})
	}
	c := f.client()

	users, err := c.UsersByLogin(context.Background(), []string{"durssbot", "otherbot"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "42", users[0].ID)
}

func TestClient_SubscriptionsFollowsPagination(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"id":        "sub-1",
					"status":    "enabled",
					"type":      "stream.online",
					"condition": map[string]string{"broadcaster_user_id": "42"},
					"transport": map[string]string{"method": "webhook", "callback": "https://example.com/api/eventsubcallback?profile=acme"},
				}},
				"pagination": map[string]string{"cursor": "page2"},
			})
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("after"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"id":        "sub-2",
				"status":    "enabled",
				"type":      "stream.online",
				"condition": map[string]string{"broadcaster_user_id": "43"},
				"transport": map[string]string{"method": "webhook", "callback": "https://example.com/api/eventsubcallback?profile=acme"},
			}},
			"pagination": map[string]string{},
		})
	}
	c := f.client()

	subs, err := c.Subscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, "42", subs[0].BroadcasterUserID)
	assert.Equal(t, "sub-2", subs[1].ID)
}

func TestClient_CreateSubscriptionSendsWebhookTransport(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/eventsub/subscriptions", r.URL.Path)

		var payload struct {
			Type      string            `json:"type"`
			Version   string            `json:"version"`
			Condition map[string]string `json:"condition"`
			Transport map[string]string `json:"transport"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "stream.online", payload.Type)
		assert.Equal(t, "1", payload.Version)
		assert.Equal(t, "42", payload.Condition["broadcaster_user_id"])
		assert.Equal(t, "webhook", payload.Transport["method"])
		assert.Equal(t, "https://example.com/api/eventsubcallback?profile=acme", payload.Transport["callback"])
		assert.Equal(t, "s3cret-s3cret", payload.Transport["secret"])

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}
	c := f.client()

	err := c.CreateSubscription(context.Background(), "42", "https://example.com/api/eventsubcallback?profile=acme", "s3cret-s3cret")
	require.NoError(t, err)
}

func TestClient_DeleteSubscription(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "sub-1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	}
	c := f.client()

	require.NoError(t, c.DeleteSubscription(context.Background(), "sub-1"))
}

func TestClient_ForbiddenSurfacesAPIError(t *testing.T) {
	f := newFakeTwitch(t)
	f.apiHandler = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}
	c := f.client()

	err := c.CreateSubscription(context.Background(), "42", "https://example.com/cb", "s3cret-s3cret")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
}
