package discord

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/Durss/streamerRaider/internal/domain"
)

const (
	colorLive    = 9520895 // Twitch purple
	colorOffline = 6575727
)

// buildEmbed renders a card as a Discord rich embed. Live cards carry the
// stream preview, offline cards swap to the recap layout.
func buildEmbed(card domain.Card) discord.Embed {
	channelURL := "https://twitch.tv/" + card.Login

	if card.Offline {
		embed := discord.Embed{
			Title: fmt.Sprintf("%s was live", card.StreamerName),
			URL:   channelURL,
			Type:  discord.EmbedTypeRich,
			Color: colorOffline,
			Fields: []discord.EmbedField{
				{Name: "Stream duration", Value: formatDuration(card.Duration), Inline: inline()},
				{Name: "Peak viewers", Value: fmt.Sprint(card.PeakViewers), Inline: inline()},
			},
		}
		if card.StreamerIcon != "" {
			embed.Thumbnail = &discord.EmbedResource{URL: card.StreamerIcon}
		}
		if card.OfflineImageURL != "" {
			embed.Image = &discord.EmbedResource{URL: card.OfflineImageURL}
		}
		return embed
	}

	embed := discord.Embed{
		Title:       fmt.Sprintf("%s is live!", card.StreamerName),
		Description: card.Title,
		URL:         channelURL,
		Type:        discord.EmbedTypeRich,
		Color:       colorLive,
		Fields: []discord.EmbedField{
			{Name: "Category", Value: valueOr(card.GameName, "-"), Inline: inline()},
			{Name: "Viewers", Value: fmt.Sprint(card.ViewerCount), Inline: inline()},
		},
	}
	if card.StreamerIcon != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: card.StreamerIcon}
	}
	if card.ThumbnailURL != "" {
		embed.Image = &discord.EmbedResource{URL: card.ThumbnailURL}
	}
	if !card.StartedAt.IsZero() {
		ts := card.StartedAt
		embed.Timestamp = &ts
	}
	return embed
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func inline() *bool {
	b := true
	return &b
}
