package domain

// Profile is an isolated configuration namespace: its own roster, admins and
// alert channels, served from one deployment. The zero profile id ("default")
// is used when profiles are not configured.
type Profile struct {
	ID              string   `json:"id"`
	Title           string   `json:"title,omitempty"`
	Domains         []string `json:"domains"`
	DiscordGuildID  string   `json:"discordGuildID,omitempty"`
	OfflineImageURL string   `json:"offlineImageURL,omitempty"`
	AdminUserIDs    []string `json:"adminUserIDs,omitempty"`
}

// DefaultProfileID is used when the deployment runs without a profile catalog.
const DefaultProfileID = "default"
