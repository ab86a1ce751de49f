package store

import "sync"

// Roster is the per-profile list of tracked Twitch logins.
type Roster struct {
	mu    sync.Mutex
	path  string
	users map[string][]string // profile id -> logins
}

func NewRoster(dir string) (*Roster, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	r := &Roster{
		path:  dataPath(dir, "users.json"),
		users: make(map[string][]string),
	}
	if err := loadJSON(r.path, &r.users); err != nil {
		return nil, err
	}
	return r, nil
}

// Logins returns a copy of the roster for the given profile.
func (r *Roster) Logins(profile string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	logins := r.users[profile]
	out := make([]string, len(logins))
	copy(out, logins)
	return out
}

// Contains reports whether the login is on the profile's roster.
func (r *Roster) Contains(profile, login string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return indexOf(r.users[profile], login) >= 0
}

// Add appends the login to the profile's roster. Returns false when the login
// was already present.
func (r *Roster) Add(profile, login string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.users[profile], login) >= 0 {
		return false, nil
	}
	r.users[profile] = append(r.users[profile], login)
	return true, saveJSON(r.path, r.users)
}

// Remove deletes the login from the profile's roster. Returns false when the
// login was not present.
func (r *Roster) Remove(profile, login string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.users[profile], login)
	if i < 0 {
		return false, nil
	}
	r.users[profile] = append(r.users[profile][:i], r.users[profile][i+1:]...)
	return true, saveJSON(r.path, r.users)
}

func indexOf(list []string, item string) int {
	for i, v := range list {
		if v == item {
			return i
		}
	}
	return -1
}
