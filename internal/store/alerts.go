package store

import "github.com/Durss/streamerRaider/internal/domain"

// AlertConfig resolves a profile to its live-alert destinations by joining
// the profile catalog with the Discord watch-list.
type AlertConfig struct {
	profiles  *Profiles
	watchlist *WatchList
}

func NewAlertConfig(profiles *Profiles, watchlist *WatchList) *AlertConfig {
	return &AlertConfig{profiles: profiles, watchlist: watchlist}
}

// AlertChannels returns the channel ids live cards are posted to for the
// profile. Empty when the profile has no guild or the bot was never added to
// a channel there.
func (a *AlertConfig) AlertChannels(profileID string) []string {
	prof, ok := a.profiles.ByID(profileID)
	if !ok {
		return nil
	}
	return a.watchlist.Channels(prof.DiscordGuildID)
}

// OfflineImage returns the profile's fallback image for offline cards.
func (a *AlertConfig) OfflineImage(profileID string) string {
	prof, _ := a.profiles.ByID(profileID)
	return prof.OfflineImageURL
}

// Profile exposes catalog lookup for collaborators holding an AlertConfig.
func (a *AlertConfig) Profile(id string) (domain.Profile, bool) {
	return a.profiles.ByID(id)
}

// ProfileIDs lists every configured profile id.
func (a *AlertConfig) ProfileIDs() []string {
	all := a.profiles.All()
	ids := make([]string, 0, len(all))
	for _, prof := range all {
		ids = append(ids, prof.ID)
	}
	return ids
}
