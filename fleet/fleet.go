package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/pharos-hub/pharos/device"
)

// ErrNotFound indicates an operation against a fleet name with no stored
// fleet.  The dispatcher surfaces this as its single out-of-band failure.
var ErrNotFound = errors.New("no such fleet")

// Fleet is a named, administratively managed set of device ids.
type Fleet struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the fleet's name and normalizes its member ids.
func (f *Fleet) Validate() error {
	if len(f.Name) == 0 {
		return errors.New("a fleet name is required")
	}

	for i, member := range f.Members {
		id, err := device.ParseID(member)
		if err != nil {
			return err
		}

		f.Members[i] = string(id)
	}

	return nil
}

// Resolver is the membership oracle the dispatcher consults: it expands a
// fleet name into a device id list once per fan-out.  Membership may change
// concurrently with dispatch; the returned slice is a snapshot.
type Resolver interface {
	// MembersOf returns the device ids belonging to the named fleet, or
	// ErrNotFound.
	MembersOf(ctx context.Context, name string) ([]device.ID, error)
}

// Store is the full CRUD surface backing the fleet REST handlers.  Every
// Store is also a Resolver.
type Store interface {
	Resolver

	// Upsert creates or replaces the named fleet.
	Upsert(ctx context.Context, f Fleet) error

	// Get returns the named fleet, or ErrNotFound.
	Get(ctx context.Context, name string) (*Fleet, error)

	// Delete removes the named fleet, returning ErrNotFound if absent.
	Delete(ctx context.Context, name string) error

	// List returns all fleets ordered by name.
	List(ctx context.Context) ([]Fleet, error)
}
