package domain

import "time"

// UserInfo is the subset of a Twitch user profile the application consumes.
type UserInfo struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
}

// StreamInfo describes a currently running stream.
type StreamInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// Subscription is a remote EventSub subscription as reported by Twitch.
// These are never persisted locally; the upstream list is the source of truth.
type Subscription struct {
	ID                string
	Type              string
	Status            string
	BroadcasterUserID string
	Callback          string
}

// SubscriptionTypeStreamOnline is the EventSub topic this system subscribes to.
const SubscriptionTypeStreamOnline = "stream.online"
