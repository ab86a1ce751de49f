// Package discord is the chat-platform adapter: a gateway bot for the roster
// management commands and a REST messenger for the alert cards.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"

	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/domain"
)

const commandPrefix = "!"

const helpText = "**Raider commands**\n" +
	"`!raider-add` watch this channel for live alerts\n" +
	"`!raider-del` stop watching this channel\n" +
	"`!add-user <login>` add a Twitch channel to the roster\n" +
	"`!del-user <login>` remove a Twitch channel from the roster\n" +
	"`!add-description <login> <text>` attach a description\n" +
	"`!del-description <login>` remove the description\n" +
	"`!raider-help` this message"

type userResolver interface {
	UsersByLogin(ctx context.Context, logins []string) ([]domain.UserInfo, error)
}

type profileCatalog interface {
	ByGuild(guildID string) (domain.Profile, bool)
	IsAdmin(profileID, userID string) bool
}

type rosterStore interface {
	Add(profile, login string) (bool, error)
	Remove(profile, login string) (bool, error)
}

type descriptionStore interface {
	Set(profile, login, text string) error
	Delete(profile, login string) error
}

type watchListStore interface {
	Add(guildID, channelID string) (bool, error)
	Remove(guildID, channelID string) (bool, error)
}

// Bot listens for roster commands in watched guilds.
type Bot struct {
	client bot.Client
	events *bus.Bus

	twitch       userResolver
	profiles     profileCatalog
	roster       rosterStore
	descriptions descriptionStore
	watchlist    watchListStore
}

// New builds the gateway bot. The gateway is not opened until Start.
func New(token string, events *bus.Bus, tw userResolver, profiles profileCatalog, roster rosterStore, descriptions descriptionStore, watchlist watchListStore) (*Bot, error) {
	b := &Bot{
		events:       events,
		twitch:       tw,
		profiles:     profiles,
		roster:       roster,
		descriptions: descriptions,
		watchlist:    watchlist,
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentMessageContent,
		)),
		bot.WithEventListenerFunc(b.onMessage),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build discord client: %w", err)
	}
	b.client = client
	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	slog.Info("Discord bot connected")
	return nil
}

// Close tears the gateway down.
func (b *Bot) Close(ctx context.Context) {
	b.client.Close(ctx)
}

// Messenger returns a card messenger sharing this bot's REST client.
func (b *Bot) Messenger() *Messenger {
	return NewMessenger(b.client.Rest())
}

func (b *Bot) onMessage(e *events.MessageCreate) {
	if e.Message.Author.Bot || e.GuildID == nil {
		return
	}
	content := strings.TrimSpace(e.Message.Content)
	if !strings.HasPrefix(content, commandPrefix) {
		return
	}

	reply := b.handleCommand(context.Background(), e.GuildID.String(), e.ChannelID.String(), e.Message.Author.ID.String(), content)
	if reply == "" {
		return
	}

	_, err := b.client.Rest().CreateMessage(e.ChannelID, discord.MessageCreate{
		Content:          reply,
		MessageReference: &discord.MessageReference{MessageID: &e.Message.ID},
	}, rest.WithCtx(context.Background()))
	if err != nil {
		slog.Error("Failed to reply to command", "channel", e.ChannelID, "error", err)
	}
}

// handleCommand executes a chat command and returns the reply text. An empty
// reply means the message was not a recognized command.
func (b *Bot) handleCommand(ctx context.Context, guildID, channelID, authorID, content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	profile := domain.DefaultProfileID
	if prof, ok := b.profiles.ByGuild(guildID); ok {
		profile = prof.ID
	}

	if cmd == "!raider-help" {
		return helpText
	}

	switch cmd {
	case "!raider-add", "!raider-del", "!add-user", "!del-user", "!add-description", "!del-description":
		if !b.profiles.IsAdmin(profile, authorID) {
			return "You need admin rights to do that."
		}
	default:
		return ""
	}

	switch cmd {
	case "!raider-add":
		added, err := b.watchlist.Add(guildID, channelID)
		if err != nil {
			return errorReply(err)
		}
		if !added {
			return "This channel is already watched."
		}
		return "Live alerts will be posted to this channel."

	case "!raider-del":
		removed, err := b.watchlist.Remove(guildID, channelID)
		if err != nil {
			return errorReply(err)
		}
		if !removed {
			return "This channel was not watched."
		}
		return "This channel will no longer receive live alerts."

	case "!add-user":
		if len(args) != 1 {
			return "Usage: `!add-user <twitch_login>`"
		}
		login := cleanLogin(args[0])
		user, err := b.resolveUser(ctx, login)
		if err != nil {
			return errorReply(err)
		}
		if user == nil {
			return fmt.Sprintf("Twitch user **%s** does not exist.", login)
		}
		added, err := b.roster.Add(profile, user.Login)
		if err != nil {
			return errorReply(err)
		}
		if !added {
			return fmt.Sprintf("**%s** is already on the list.", user.DisplayName)
		}
		b.events.Emit(domain.Event{Type: domain.EventUserAdded, Profile: profile, BroadcasterID: user.ID})
		return fmt.Sprintf("**%s** added to the list.", user.DisplayName)

	case "!del-user":
		if len(args) != 1 {
			return "Usage: `!del-user <twitch_login>`"
		}
		login := cleanLogin(args[0])
		removed, err := b.roster.Remove(profile, login)
		if err != nil {
			return errorReply(err)
		}
		if !removed {
			return fmt.Sprintf("**%s** is not on the list.", login)
		}
		if user, err := b.resolveUser(ctx, login); err == nil && user != nil {
			b.events.Emit(domain.Event{Type: domain.EventUserRemoved, Profile: profile, BroadcasterID: user.ID})
		} else {
			slog.Warn("Removed roster entry but could not resolve its id for unsubscribe", "login", login, "error", err)
		}
		return fmt.Sprintf("**%s** removed from the list.", login)

	case "!add-description":
		if len(args) < 2 {
			return "Usage: `!add-description <twitch_login> <description>`"
		}
		login := cleanLogin(args[0])
		if err := b.descriptions.Set(profile, login, strings.Join(args[1:], " ")); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Description saved for **%s**.", login)

	case "!del-description":
		if len(args) != 1 {
			return "Usage: `!del-description <twitch_login>`"
		}
		login := cleanLogin(args[0])
		if err := b.descriptions.Delete(profile, login); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Description removed for **%s**.", login)
	}

	return ""
}

func (b *Bot) resolveUser(ctx context.Context, login string) (*domain.UserInfo, error) {
	users, err := b.twitch.UsersByLogin(ctx, []string{login})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func cleanLogin(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}

func errorReply(err error) string {
	slog.Error("Command failed", "error", err)
	return "Something went wrong, try again later."
}
