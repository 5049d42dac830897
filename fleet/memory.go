package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/pharos-hub/pharos/device"
)

// InMemory is a Store backed by a map.  It is the default when no database
// path is configured, and the store of choice in tests.
type InMemory struct {
	lock   sync.RWMutex
	fleets map[string]Fleet
	now    func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory constructs an empty in-memory Store.
func NewInMemory() *InMemory {
	return &InMemory{
		fleets: make(map[string]Fleet),
		now:    time.Now,
	}
}

func (m *InMemory) Upsert(_ context.Context, f Fleet) error {
	if err := f.Validate(); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now().UTC()
	if existing, ok := m.fleets[f.Name]; ok {
		f.CreatedAt = existing.CreatedAt
	} else {
		f.CreatedAt = now
	}

	f.UpdatedAt = now
	f.Members = append([]string{}, f.Members...)
	m.fleets[f.Name] = f
	return nil
}

func (m *InMemory) Get(_ context.Context, name string) (*Fleet, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	f, ok := m.fleets[name]
	if !ok {
		return nil, ErrNotFound
	}

	f.Members = append([]string{}, f.Members...)
	return &f, nil
}

func (m *InMemory) Delete(_ context.Context, name string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.fleets[name]; !ok {
		return ErrNotFound
	}

	delete(m.fleets, name)
	return nil
}

func (m *InMemory) List(_ context.Context) ([]Fleet, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	all := maps.Values(m.fleets)
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	for i := range all {
		all[i].Members = append([]string{}, all[i].Members...)
	}

	return all, nil
}

func (m *InMemory) MembersOf(_ context.Context, name string) ([]device.ID, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	f, ok := m.fleets[name]
	if !ok {
		return nil, ErrNotFound
	}

	members := make([]device.ID, 0, len(f.Members))
	for _, member := range f.Members {
		members = append(members, device.ID(member))
	}

	return members, nil
}
