package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Durss/streamerRaider/internal/domain"
)

type wireSubscription struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Condition struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
	} `json:"condition"`
	Transport struct {
		Method   string `json:"method"`
		Callback string `json:"callback"`
	} `json:"transport"`
}

func (w wireSubscription) toDomain() domain.Subscription {
	return domain.Subscription{
		ID:                w.ID,
		Status:            w.Status,
		Type:              w.Type,
		BroadcasterUserID: w.Condition.BroadcasterUserID,
		Callback:          w.Transport.Callback,
	}
}

// CreateSubscription registers a webhook EventSub subscription for the
// "stream.online" topic of the given broadcaster.
func (c *Client) CreateSubscription(ctx context.Context, broadcasterID, callback, secret string) error {
	payload := map[string]any{
		"type":    domain.SubscriptionTypeStreamOnline,
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": broadcasterID,
		},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": callback,
			"secret":   secret,
		},
	}

	if err := c.do(ctx, http.MethodPost, "/eventsub/subscriptions", nil, payload, nil); err != nil {
		return fmt.Errorf("failed to create eventsub subscription for %s: %w", broadcasterID, err)
	}
	return nil
}

// Subscriptions lists every EventSub subscription owned by the app,
// following pagination cursors.
func (c *Client) Subscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var result []domain.Subscription
	after := ""

	for {
		query := url.Values{}
		if after != "" {
			query.Set("after", after)
		}

		var resp struct {
			Data       []wireSubscription `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := c.do(ctx, http.MethodGet, "/eventsub/subscriptions", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list eventsub subscriptions: %w", err)
		}

		for _, sub := range resp.Data {
			result = append(result, sub.toDomain())
		}

		if resp.Pagination.Cursor == "" {
			return result, nil
		}
		after = resp.Pagination.Cursor
	}
}

// DeleteSubscription removes a remote EventSub subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	query := url.Values{}
	query.Set("id", id)

	if err := c.do(ctx, http.MethodDelete, "/eventsub/subscriptions", query, nil, nil); err != nil {
		return fmt.Errorf("failed to delete eventsub subscription %s: %w", id, err)
	}
	return nil
}
