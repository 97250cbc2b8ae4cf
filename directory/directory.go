// Package directory is the in-process stand-in for the external user
// profile service. The messaging core only ever resolves ids to
// profiles; it never mutates them.
package directory

import (
	"fmt"
	"sort"
	"sync"

	"carechat/domain"
	"carechat/errors"
)

type Static struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewStatic(profiles ...domain.Profile) *Static {
	d := &Static{profiles: make(map[string]domain.Profile)}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *Static) Lookup(id string) (domain.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[id]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	return profile, nil
}

func (d *Static) List() []domain.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profiles := make([]domain.Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles
}

// Register adds or replaces a profile. Used at boot to seed known users.
func (d *Static) Register(p domain.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}
