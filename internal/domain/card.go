package domain

import "time"

// Card is the platform-agnostic content of a live-alert message. The chat
// adapter decides how to render it (Discord renders it as a rich embed).
type Card struct {
	Offline bool

	StreamerName string
	StreamerIcon string
	Login        string
	Title        string
	GameName     string
	ViewerCount  int
	StartedAt    time.Time
	ThumbnailURL string

	// Offline layout only.
	Duration        time.Duration
	PeakViewers     int
	OfflineImageURL string
}

// MessageRef identifies a posted chat message so it can be edited in place.
type MessageRef struct {
	ChannelID string
	MessageID string
}
