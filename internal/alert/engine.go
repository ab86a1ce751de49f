// Package alert drives the live-alert cards. One session per broadcaster
// polls the stream into existence, posts a card to every alert channel, keeps
// it fresh while the stream is up and flips it to an offline layout when the
// stream is gone.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpillora/backoff"

	"github.com/Durss/streamerRaider/internal/bus"
	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/metrics"
)

const (
	// Twitch fires stream.online before /streams returns data, so the first
	// polls after a live event routinely come back empty.
	maxStartPolls = 10

	// Consecutive empty refresh polls before the stream is considered over.
	// A single empty response can be an upstream hiccup.
	maxEmptyPolls = 10

	refreshInterval = time.Minute

	// Hard ceiling on card lifetime. A stream that never reads as offline
	// (upstream stuck, subscription revoked mid-stream) must not leave a
	// "live" card up forever.
	maxCardAge = 24 * time.Hour

	pollBackoffMin = 5 * time.Second
	pollBackoffMax = 60 * time.Second

	thumbnailWidth  = 1280
	thumbnailHeight = 720

	// Thumbnail URLs get a cache-busting token bucketed to this window so
	// repeated edits within the window do not produce new URLs.
	thumbnailBucket = 5 * time.Minute
)

// streamSource is the subset of the Twitch client the engine polls.
type streamSource interface {
	StreamByUserID(ctx context.Context, userID string) (*domain.StreamInfo, error)
	UserByID(ctx context.Context, userID string) (*domain.UserInfo, error)
	UsersByLogin(ctx context.Context, logins []string) ([]domain.UserInfo, error)
}

// Messenger posts and edits alert cards on the chat platform.
type Messenger interface {
	PostCard(ctx context.Context, channelID string, card domain.Card) (domain.MessageRef, error)
	EditCard(ctx context.Context, ref domain.MessageRef, card domain.Card) error
}

// alertConfig resolves profiles to alert destinations.
type alertConfig interface {
	AlertChannels(profileID string) []string
	OfflineImage(profileID string) string
	ProfileIDs() []string
}

type rosterSource interface {
	Logins(profile string) []string
}

// Engine owns the per-broadcaster alert sessions.
type Engine struct {
	clock     clockwork.Clock
	twitch    streamSource
	messenger Messenger
	configs   alertConfig
	roster    rosterSource
	events    *bus.Bus

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	key           string
	profile       string
	broadcasterID string
	cancel        context.CancelFunc

	card       domain.Card
	refs       []domain.MessageRef
	emptyPolls int
	openedAt   time.Time
}

// NewEngine creates the engine and wires it to the bus: live events open
// sessions, roster additions request an upstream subscription.
func NewEngine(clock clockwork.Clock, tw streamSource, messenger Messenger, configs alertConfig, roster rosterSource, events *bus.Bus) *Engine {
	e := &Engine{
		clock:     clock,
		twitch:    tw,
		messenger: messenger,
		configs:   configs,
		roster:    roster,
		events:    events,
		sessions:  make(map[string]*session),
	}

	events.On(domain.EventLive, func(ev domain.Event) {
		e.NotifyLive(ev.Profile, ev.BroadcasterID)
	})
	events.On(domain.EventUserAdded, func(ev domain.Event) {
		// A tenant without alert channels has nowhere to post, so a remote
		// subscription would only produce deliveries nobody consumes.
		if len(e.configs.AlertChannels(ev.Profile)) == 0 {
			slog.Info("No alert channels configured, skipping subscription", "profile", ev.Profile, "broadcaster", ev.BroadcasterID)
			return
		}
		events.Emit(domain.Event{Type: domain.EventSubToLive, Profile: ev.Profile, BroadcasterID: ev.BroadcasterID})
	})

	return e
}

// NotifyLive opens an alert session for the broadcaster. A broadcaster with a
// session already open is left alone: the running session keeps its card
// fresh and a second one would double-post.
func (e *Engine) NotifyLive(profile, broadcasterID string) {
	channels := e.configs.AlertChannels(profile)
	if len(channels) == 0 {
		slog.Info("No alert channels configured, skipping live alert", "profile", profile, "broadcaster", broadcasterID)
		return
	}

	key := profile + "/" + broadcasterID

	e.mu.Lock()
	if _, ok := e.sessions[key]; ok {
		e.mu.Unlock()
		slog.Info("Alert session already open", "profile", profile, "broadcaster", broadcasterID)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{key: key, profile: profile, broadcasterID: broadcasterID, cancel: cancel}
	e.sessions[key] = s
	e.mu.Unlock()

	go e.run(ctx, s, channels)
}

// Resync resolves every roster login and requests an upstream subscription
// for each, bringing remote state back in line after a restart.
func (e *Engine) Resync(ctx context.Context) {
	for _, profile := range e.configs.ProfileIDs() {
		if len(e.configs.AlertChannels(profile)) == 0 {
			continue
		}
		logins := e.roster.Logins(profile)
		if len(logins) == 0 {
			continue
		}
		users, err := e.twitch.UsersByLogin(ctx, logins)
		if err != nil {
			slog.Error("Failed to resolve roster during resync", "profile", profile, "error", err)
			continue
		}
		for _, user := range users {
			e.events.Emit(domain.Event{Type: domain.EventSubToLive, Profile: profile, BroadcasterID: user.ID})
		}
		slog.Info("Roster resynced", "profile", profile, "users", len(users))
	}
}

// Shutdown cancels every open session. Cards are left as-is; the next live
// event after a restart reopens them.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		s.cancel()
	}
	e.sessions = make(map[string]*session)
}

func (e *Engine) run(ctx context.Context, s *session, channels []string) {
	defer e.drop(s)

	stream := e.pollForStart(ctx, s)
	if stream == nil {
		slog.Warn("Stream never appeared upstream, abandoning alert", "profile", s.profile, "broadcaster", s.broadcasterID)
		metrics.AlertsTotal.WithLabelValues("abandoned").Inc()
		return
	}

	if !e.openCard(ctx, s, stream, channels) {
		metrics.AlertsTotal.WithLabelValues("abandoned").Inc()
		return
	}

	e.refreshLoop(ctx, s)
}

// pollForStart polls the streams endpoint until it reflects the live stream,
// with capped exponential backoff between attempts.
func (e *Engine) pollForStart(ctx context.Context, s *session) *domain.StreamInfo {
	b := &backoff.Backoff{Min: pollBackoffMin, Max: pollBackoffMax, Factor: 2}

	for attempt := 1; attempt <= maxStartPolls; attempt++ {
		stream, err := e.twitch.StreamByUserID(ctx, s.broadcasterID)
		if err != nil {
			slog.Warn("Stream poll failed", "broadcaster", s.broadcasterID, "attempt", attempt, "error", err)
		} else if stream != nil {
			return stream
		}

		if attempt == maxStartPolls {
			break
		}
		select {
		case <-e.clock.After(b.Duration()):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (e *Engine) openCard(ctx context.Context, s *session, stream *domain.StreamInfo, channels []string) bool {
	user, err := e.twitch.UserByID(ctx, s.broadcasterID)
	if err != nil {
		slog.Warn("Failed to load broadcaster details for card", "broadcaster", s.broadcasterID, "error", err)
	}

	s.openedAt = e.clock.Now()
	s.card = e.buildCard(s, stream, user)

	for _, channel := range channels {
		ref, err := e.messenger.PostCard(ctx, channel, s.card)
		if err != nil {
			slog.Error("Failed to post alert card", "channel", channel, "broadcaster", s.broadcasterID, "error", err)
			continue
		}
		s.refs = append(s.refs, ref)
		metrics.AlertsTotal.WithLabelValues("posted").Inc()
	}

	if len(s.refs) == 0 {
		slog.Error("Could not post to any alert channel", "profile", s.profile, "broadcaster", s.broadcasterID)
		return false
	}

	slog.Info("Alert card posted", "profile", s.profile, "broadcaster", s.broadcasterID, "channels", len(s.refs))
	return true
}

func (e *Engine) refreshLoop(ctx context.Context, s *session) {
	// Empty polls come back on the short start-poll backoff so a dead stream
	// converges to the offline layout quickly; live polls keep the regular
	// refresh cadence.
	b := &backoff.Backoff{Min: pollBackoffMin, Max: pollBackoffMax, Factor: 2}
	wait := refreshInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(wait):
		}

		if e.clock.Now().Sub(s.openedAt) > maxCardAge {
			slog.Warn("Alert card exceeded maximum age, closing", "broadcaster", s.broadcasterID)
			e.closeCard(ctx, s)
			return
		}

		stream, err := e.twitch.StreamByUserID(ctx, s.broadcasterID)
		if err != nil {
			// Upstream trouble reads the same as an empty poll so a dead
			// stream still converges to the offline layout.
			slog.Warn("Refresh poll failed", "broadcaster", s.broadcasterID, "error", err)
			stream = nil
		}

		if stream == nil {
			s.emptyPolls++
			if s.emptyPolls >= maxEmptyPolls {
				e.closeCard(ctx, s)
				return
			}
			wait = b.Duration()
			continue
		}

		s.emptyPolls = 0
		b.Reset()
		wait = refreshInterval
		s.card.Title = stream.Title
		s.card.GameName = stream.GameName
		s.card.ViewerCount = stream.ViewerCount
		if stream.ViewerCount > s.card.PeakViewers {
			s.card.PeakViewers = stream.ViewerCount
		}
		s.card.ThumbnailURL = e.thumbnailURL(stream.ThumbnailURL)

		e.editAll(ctx, s)
	}
}

// closeCard flips every posted message to the offline layout once and ends
// the session.
func (e *Engine) closeCard(ctx context.Context, s *session) {
	s.card.Offline = true
	s.card.Duration = e.clock.Now().Sub(s.card.StartedAt).Round(time.Minute)
	s.card.ThumbnailURL = ""

	e.editAll(ctx, s)
	metrics.AlertsTotal.WithLabelValues("closed").Inc()
	slog.Info("Alert card closed", "profile", s.profile, "broadcaster", s.broadcasterID, "peak_viewers", s.card.PeakViewers)
}

func (e *Engine) editAll(ctx context.Context, s *session) {
	for _, ref := range s.refs {
		if err := e.messenger.EditCard(ctx, ref, s.card); err != nil {
			// Keep the schedule; a transient edit failure self-heals on the
			// next refresh.
			slog.Warn("Failed to edit alert card", "channel", ref.ChannelID, "message", ref.MessageID, "error", err)
			continue
		}
		metrics.AlertsTotal.WithLabelValues("updated").Inc()
	}
}

func (e *Engine) buildCard(s *session, stream *domain.StreamInfo, user *domain.UserInfo) domain.Card {
	card := domain.Card{
		StreamerName:    stream.UserName,
		Login:           stream.UserLogin,
		Title:           stream.Title,
		GameName:        stream.GameName,
		ViewerCount:     stream.ViewerCount,
		PeakViewers:     stream.ViewerCount,
		StartedAt:       stream.StartedAt,
		ThumbnailURL:    e.thumbnailURL(stream.ThumbnailURL),
		OfflineImageURL: e.configs.OfflineImage(s.profile),
	}
	if user != nil {
		card.StreamerIcon = user.ProfileImageURL
		if user.OfflineImageURL != "" {
			card.OfflineImageURL = user.OfflineImageURL
		}
	}
	return card
}

// thumbnailURL expands the helix {width}x{height} template and appends a
// cache-busting token so edited messages pick up a fresh preview.
func (e *Engine) thumbnailURL(template string) string {
	if template == "" {
		return ""
	}
	u := strings.NewReplacer(
		"{width}", fmt.Sprint(thumbnailWidth),
		"{height}", fmt.Sprint(thumbnailHeight),
	).Replace(template)
	bucket := e.clock.Now().Unix() / int64(thumbnailBucket/time.Second)
	return fmt.Sprintf("%s?t=%d", u, bucket)
}

func (e *Engine) drop(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.sessions[s.key]; ok && cur == s {
		s.cancel()
		delete(e.sessions, s.key)
	}
}
