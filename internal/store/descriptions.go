package store

import "sync"

// Descriptions holds free-text descriptions attached to roster entries.
type Descriptions struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]string // profile id -> login -> text
}

func NewDescriptions(dir string) (*Descriptions, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	d := &Descriptions{
		path: dataPath(dir, "descriptions.json"),
		data: make(map[string]map[string]string),
	}
	if err := loadJSON(d.path, &d.data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptions) Get(profile, login string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.data[profile][login]
	return text, ok
}

func (d *Descriptions) Set(profile, login, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data[profile] == nil {
		d.data[profile] = make(map[string]string)
	}
	d.data[profile][login] = text
	return saveJSON(d.path, d.data)
}

func (d *Descriptions) Delete(profile, login string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data[profile], login)
	return saveJSON(d.path, d.data)
}

// All returns a copy of every description for the profile.
func (d *Descriptions) All(profile string) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.data[profile]))
	for login, text := range d.data[profile] {
		out[login] = text
	}
	return out
}
