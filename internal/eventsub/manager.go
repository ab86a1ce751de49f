// Package eventsub owns the lifecycle of Twitch EventSub webhook
// subscriptions: one "stream.online" subscription per (profile, broadcaster)
// pair, reconciled against the remote list at startup, plus the inbound
// signed-webhook handler that turns deliveries into bus events.
package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/metrics"
	"github.com/Durss/streamerRaider/internal/platform/retry"
	"github.com/Durss/streamerRaider/internal/twitch"
)

const (
	// Minimum gap between two live alerts for the same broadcaster. Flapping
	// streams and redundant subscriptions must not double-alert.
	debounceWindow = 30 * time.Minute

	seenTTL = 3 * time.Hour
	seenMax = 4096

	subscribeMaxAttempts = 5
	subscribeBackoff     = 1 * time.Second
	subscribeMaxBackoff  = 30 * time.Second
	rateLimitBackoff     = 30 * time.Second
)

// apiClient is the subset of the Twitch client used by the Manager.
type apiClient interface {
	CreateSubscription(ctx context.Context, broadcasterID, callback, secret string) error
	Subscriptions(ctx context.Context) ([]domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Manager registers and cleans up remote EventSub subscriptions and handles
// the inbound webhook. Subscriptions only exist remotely; the upstream list
// is the source of truth.
type Manager struct {
	client apiClient
	events *bus.Bus
	clock  clockwork.Clock

	callbackURL string
	secret      string
	enabled     bool

	seen *seenCache

	mu        sync.Mutex
	lastAlert map[string]time.Time // broadcaster id -> last alert time
}

// NewManager creates a Manager. When callbackURL or secret is empty the
// manager is inert: operations log and return without touching upstream.
func NewManager(client apiClient, events *bus.Bus, clock clockwork.Clock, callbackURL, secret string) *Manager {
	m := &Manager{
		client:      client,
		events:      events,
		clock:       clock,
		callbackURL: strings.TrimRight(callbackURL, "/"),
		secret:      secret,
		enabled:     callbackURL != "" && secret != "",
		seen:        newSeenCache(clock, seenTTL, seenMax),
		lastAlert:   make(map[string]time.Time),
	}

	events.On(domain.EventSubToLive, func(e domain.Event) {
		if err := m.Subscribe(context.Background(), e.Profile, e.BroadcasterID); err != nil {
			slog.Error("EventSub subscribe failed", "profile", e.Profile, "broadcaster", e.BroadcasterID, "error", err)
		}
	})
	events.On(domain.EventUserRemoved, func(e domain.Event) {
		if err := m.Unsubscribe(context.Background(), e.Profile, e.BroadcasterID); err != nil {
			slog.Error("EventSub unsubscribe failed", "profile", e.Profile, "broadcaster", e.BroadcasterID, "error", err)
		}
	})
	events.On(domain.EventResetAllSubscriptions, func(e domain.Event) {
		if err := m.ResetAll(context.Background(), e.Profile); err != nil {
			slog.Error("EventSub reset failed", "profile", e.Profile, "error", err)
		}
	})

	return m
}

// Enabled reports whether the manager has a callback URL and secret.
func (m *Manager) Enabled() bool { return m.enabled }

// Initialize deletes every remote subscription left behind by a previous
// deployment at this callback URL. Dangling subscriptions would double-fire
// alerts once new ones are registered.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.enabled {
		slog.Warn("EventSub is missing a callback URL or secret, live notifications are disabled")
		return nil
	}

	subs, err := m.client.Subscriptions(ctx)
	if err != nil {
		if twitch.IsStatus(err, http.StatusForbidden) || twitch.IsStatus(err, http.StatusUnauthorized) {
			m.logReauthorizeHint()
		}
		return fmt.Errorf("failed to list subscriptions during startup reconcile: %w", err)
	}

	cleaned := 0
	for _, sub := range subs {
		if !m.ownsCallback(sub.Callback) {
			continue
		}
		if err := m.client.DeleteSubscription(ctx, sub.ID); err != nil {
			slog.Error("Failed to clean up previous subscription", "subscription", sub.ID, "error", err)
			continue
		}
		cleaned++
		metrics.SubscriptionsTotal.WithLabelValues("reconciled").Inc()
	}

	slog.Info("EventSub ready", "callback", m.callbackURL, "cleaned", cleaned)
	return nil
}

// Subscribe registers a "stream.online" webhook subscription for the
// broadcaster, tagging the callback with the profile. Transport errors are
// retried with capped exponential backoff; 403 means the Twitch app needs to
// be re-authorized by an operator and is never retried.
func (m *Manager) Subscribe(ctx context.Context, profile, broadcasterID string) error {
	if !m.enabled {
		slog.Warn("EventSub disabled, skipping subscribe", "broadcaster", broadcasterID)
		return nil
	}

	policy := retry.Policy{
		MaxAttempts:      subscribeMaxAttempts,
		InitialBackoff:   subscribeBackoff,
		MaxBackoff:       subscribeMaxBackoff,
		RateLimitBackoff: rateLimitBackoff,
		Clock:            m.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("EventSub subscribe retrying", "broadcaster", broadcasterID, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	err := retry.DoVoid(ctx, policy, classifySubscribeError, func() error {
		err := m.client.CreateSubscription(ctx, broadcasterID, m.callbackFor(profile), m.secret)
		if twitch.IsStatus(err, http.StatusConflict) {
			// Already subscribed on Twitch, nothing to do.
			return nil
		}
		return err
	})
	if err != nil {
		var permErr *retry.PermanentError
		if errors.As(err, &permErr) && twitch.IsStatus(err, http.StatusForbidden) {
			m.logReauthorizeHint()
		}
		return fmt.Errorf("failed to subscribe broadcaster %s: %w", broadcasterID, err)
	}

	metrics.SubscriptionsTotal.WithLabelValues("created").Inc()
	slog.Info("Subscribed to stream.online", "profile", profile, "broadcaster", broadcasterID)
	return nil
}

// Unsubscribe finds the remote subscription matching both the broadcaster and
// the profile and deletes it. The list/delete pair is not transactional; a
// concurrent remote mutation can cause a miss, which callers may retry.
func (m *Manager) Unsubscribe(ctx context.Context, profile, broadcasterID string) error {
	if !m.enabled {
		return nil
	}

	subs, err := m.client.Subscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if sub.BroadcasterUserID != broadcasterID || !m.ownsCallback(sub.Callback) {
			continue
		}
		if profileFromCallback(sub.Callback) != profile {
			continue
		}
		if err := m.client.DeleteSubscription(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to delete subscription %s: %w", sub.ID, err)
		}
		metrics.SubscriptionsTotal.WithLabelValues("deleted").Inc()
		slog.Info("Unsubscribed from stream.online", "profile", profile, "broadcaster", broadcasterID, "subscription", sub.ID)
	}
	return nil
}

// ResetAll deletes every remote subscription pointing at this deployment.
// With a non-empty profile only that profile's subscriptions are removed.
func (m *Manager) ResetAll(ctx context.Context, profile string) error {
	if !m.enabled {
		return nil
	}

	subs, err := m.client.Subscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !m.ownsCallback(sub.Callback) {
			continue
		}
		if profile != "" && profileFromCallback(sub.Callback) != profile {
			continue
		}
		if err := m.client.DeleteSubscription(ctx, sub.ID); err != nil {
			slog.Error("Failed to delete subscription during reset", "subscription", sub.ID, "error", err)
			continue
		}
		metrics.SubscriptionsTotal.WithLabelValues("deleted").Inc()
	}
	return nil
}

func classifySubscribeError(err error) retry.Action {
	var apiErr *twitch.APIError
	if !errors.As(err, &apiErr) {
		return retry.Retry // transport error
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return retry.Retry
	default:
		return retry.Stop
	}
}

// callbackFor tags the callback URL with the profile so deliveries can be
// routed back to their tenant.
func (m *Manager) callbackFor(profile string) string {
	return m.callbackURL + "?profile=" + url.QueryEscape(profile)
}

func (m *Manager) ownsCallback(callback string) bool {
	return strings.HasPrefix(callback, m.callbackURL)
}

// profileFromCallback recovers the profile a subscription was registered for
// from its callback URL query string.
func profileFromCallback(callback string) string {
	u, err := url.Parse(callback)
	if err != nil {
		return ""
	}
	return u.Query().Get("profile")
}

// shouldAlert enforces the per-broadcaster debounce window and records the
// alert timestamp when the alert passes.
func (m *Manager) shouldAlert(broadcasterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if last, ok := m.lastAlert[broadcasterID]; ok && now.Sub(last) < debounceWindow {
		return false
	}
	m.lastAlert[broadcasterID] = now
	return true
}

func (m *Manager) logReauthorizeHint() {
	slog.Error("Authorization must be granted to the Twitch app, open this URL in a browser",
		"url", "https://id.twitch.tv/oauth2/authorize?response_type=token")
}
