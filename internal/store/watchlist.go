package store

import "sync"

// WatchList maps a Discord guild to the channels the bot was configured on
// with !raider-add. Those channels double as the live-alert destinations.
type WatchList struct {
	mu   sync.Mutex
	path string
	data map[string][]string // guild id -> channel ids
}

func NewWatchList(dir string) (*WatchList, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	w := &WatchList{
		path: dataPath(dir, "discord_channels.json"),
		data: make(map[string][]string),
	}
	if err := loadJSON(w.path, &w.data); err != nil {
		return nil, err
	}
	return w, nil
}

// Channels returns a copy of the watched channel ids for the guild.
func (w *WatchList) Channels(guildID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	channels := w.data[guildID]
	out := make([]string, len(channels))
	copy(out, channels)
	return out
}

// Contains reports whether the channel is watched for the guild.
func (w *WatchList) Contains(guildID, channelID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return indexOf(w.data[guildID], channelID) >= 0
}

func (w *WatchList) Add(guildID, channelID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if indexOf(w.data[guildID], channelID) >= 0 {
		return false, nil
	}
	w.data[guildID] = append(w.data[guildID], channelID)
	return true, saveJSON(w.path, w.data)
}

func (w *WatchList) Remove(guildID, channelID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := indexOf(w.data[guildID], channelID)
	if i < 0 {
		return false, nil
	}
	w.data[guildID] = append(w.data[guildID][:i], w.data[guildID][i+1:]...)
	return true, saveJSON(w.path, w.data)
}
