package store

import (
	"fmt"

	"github.com/Durss/streamerRaider/internal/domain"
)

// Profiles is the read-only profile catalog. Without a catalog file the
// deployment serves a single default profile.
type Profiles struct {
	list []domain.Profile
}

func NewProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{list: []domain.Profile{{ID: domain.DefaultProfileID}}}, nil
	}

	var list []domain.Profile
	if err := loadJSON(path, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("profile catalog %s is empty", path)
	}
	return &Profiles{list: list}, nil
}

// All returns every configured profile.
func (p *Profiles) All() []domain.Profile {
	out := make([]domain.Profile, len(p.list))
	copy(out, p.list)
	return out
}

// ByID looks a profile up by its id.
func (p *Profiles) ByID(id string) (domain.Profile, bool) {
	for _, prof := range p.list {
		if prof.ID == id {
			return prof, true
		}
	}
	return domain.Profile{}, false
}

// ByDomain resolves a request's Host header to a profile.
func (p *Profiles) ByDomain(host string) (domain.Profile, bool) {
	for _, prof := range p.list {
		for _, d := range prof.Domains {
			if d == host {
				return prof, true
			}
		}
	}
	return domain.Profile{}, false
}

// ByGuild resolves a Discord guild to a profile.
func (p *Profiles) ByGuild(guildID string) (domain.Profile, bool) {
	if guildID == "" {
		return domain.Profile{}, false
	}
	for _, prof := range p.list {
		if prof.DiscordGuildID == guildID {
			return prof, true
		}
	}
	return domain.Profile{}, false
}

// IsAdmin reports whether the Discord user administers the profile.
func (p *Profiles) IsAdmin(profileID, userID string) bool {
	prof, ok := p.ByID(profileID)
	if !ok {
		return false
	}
	return indexOf(prof.AdminUserIDs, userID) >= 0
}
