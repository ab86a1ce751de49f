package discord

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/Durss/streamerRaider/internal/domain"
)

// Messenger posts and edits alert cards through the Discord REST API.
type Messenger struct {
	rest rest.Rest
}

func NewMessenger(r rest.Rest) *Messenger {
	return &Messenger{rest: r}
}

func (m *Messenger) PostCard(ctx context.Context, channelID string, card domain.Card) (domain.MessageRef, error) {
	chanID, err := snowflake.Parse(channelID)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}

	msg, err := m.rest.CreateMessage(chanID, discord.MessageCreate{
		Embeds: []discord.Embed{buildEmbed(card)},
	}, rest.WithCtx(ctx))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("failed to post card to channel %s: %w", channelID, err)
	}

	return domain.MessageRef{ChannelID: channelID, MessageID: msg.ID.String()}, nil
}

func (m *Messenger) EditCard(ctx context.Context, ref domain.MessageRef, card domain.Card) error {
	chanID, err := snowflake.Parse(ref.ChannelID)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", ref.ChannelID, err)
	}
	msgID, err := snowflake.Parse(ref.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", ref.MessageID, err)
	}

	embeds := []discord.Embed{buildEmbed(card)}
	if _, err := m.rest.UpdateMessage(chanID, msgID, discord.MessageUpdate{Embeds: &embeds}, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to edit card %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return nil
}
