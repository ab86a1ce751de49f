package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/metrics"
)

const (
	headerMessageID = "Twitch-Eventsub-Message-Id"
	headerTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerSignature = "Twitch-Eventsub-Message-Signature"

	statusVerificationPending = "webhook_callback_verification_pending"
	eventTypeLive             = "live"
)

type webhookPayload struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Type      string `json:"type"`
		Transport struct {
			Callback string `json:"callback"`
		} `json:"transport"`
	} `json:"subscription"`
	Event struct {
		Type                string `json:"type"`
		BroadcasterUserID   string `json:"broadcaster_user_id"`
		BroadcasterUserName string `json:"broadcaster_user_name"`
	} `json:"event"`
}

// HandleWebhook processes an inbound EventSub delivery. A forged verification
// signature is the only condition that returns non-200: Twitch retries
// non-200 responses, and retrying anything else would only produce a retry
// storm for events we cannot act on anyway.
func (m *Manager) HandleWebhook(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		slog.Error("Failed to read webhook body", "error", err)
		return c.NoContent(http.StatusOK)
	}

	messageID := req.Header.Get(headerMessageID)
	if messageID == "" {
		slog.Error("Webhook delivery without message id")
		return c.NoContent(http.StatusOK)
	}

	// Replays of already-handled messages are invisible, not re-alerted.
	if m.seen.Seen(messageID) {
		metrics.WebhooksTotal.WithLabelValues("duplicate").Inc()
		return c.NoContent(http.StatusOK)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Error("Failed to parse webhook payload", "message_id", messageID, "error", err)
		m.seen.Mark(messageID)
		return c.NoContent(http.StatusOK)
	}

	if payload.Subscription.Status == statusVerificationPending {
		signature := req.Header.Get(headerSignature)
		timestamp := req.Header.Get(headerTimestamp)
		if !m.validSignature(messageID, timestamp, body, signature) {
			slog.Error("Invalid signature on verification challenge", "message_id", messageID)
			metrics.WebhooksTotal.WithLabelValues("invalid_signature").Inc()
			return c.NoContent(http.StatusUnauthorized)
		}
		slog.Info("EventSub challenge completed", "type", payload.Subscription.Type)
		metrics.WebhooksTotal.WithLabelValues("challenge").Inc()
		m.seen.Mark(messageID)
		return c.String(http.StatusOK, payload.Challenge)
	}

	if payload.Event.Type == eventTypeLive {
		m.handleLive(c, payload)
	} else {
		metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
	}

	m.seen.Mark(messageID)
	return c.NoContent(http.StatusOK)
}

func (m *Manager) handleLive(c echo.Context, payload webhookPayload) {
	broadcasterID := payload.Event.BroadcasterUserID

	profile := c.QueryParam("profile")
	if profile == "" {
		profile = profileFromCallback(payload.Subscription.Transport.Callback)
	}
	if profile == "" {
		profile = domain.DefaultProfileID
	}

	if !m.shouldAlert(broadcasterID) {
		slog.Info("Live event debounced", "profile", profile, "broadcaster", broadcasterID)
		metrics.WebhooksTotal.WithLabelValues("debounced").Inc()
		return
	}

	slog.Info("A channel went live", "profile", profile, "broadcaster", broadcasterID, "name", payload.Event.BroadcasterUserName)
	metrics.WebhooksTotal.WithLabelValues("accepted").Inc()
	m.events.Emit(domain.Event{Type: domain.EventLive, Profile: profile, BroadcasterID: broadcasterID})
}

// validSignature recomputes HMAC-SHA256(messageId + timestamp + rawBody) with
// the shared secret and compares it to the signature header in constant time.
func (m *Manager) validSignature(messageID, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
