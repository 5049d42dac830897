package analytics

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/maps"
)

// DefaultRingSize is the per-device retained event count applied when the
// store options supply none.
const DefaultRingSize = 1024

// StoredEvent is one retained event together with its ingest provenance.
type StoredEvent struct {
	Fingerprint uint32    `json:"device_fingerprint"`
	EventID     []byte    `json:"event_id"`
	Kind        string    `json:"kind"`
	RecordedAt  time.Time `json:"recorded_at"`
	ReceivedAt  time.Time `json:"received_at"`
	Payload     []byte    `json:"payload,omitempty"`
}

// Summary is the fleet-wide aggregation served by the read side.
type Summary struct {
	// TotalEvents counts every event ever stored, including those since
	// evicted from the rings.
	TotalEvents int64 `json:"total_events"`

	// TotalBatches counts every accepted batch.
	TotalBatches int64 `json:"total_batches"`

	// RejectedEvents counts per-event rejections.
	RejectedEvents int64 `json:"rejected_events"`

	// DroppedByDevices accumulates the drop counts devices self-report in
	// their queue status.
	DroppedByDevices int64 `json:"dropped_by_devices"`

	// Devices is the count of distinct fingerprints seen.
	Devices int `json:"devices"`

	// StoredEvents is the count of events currently retained.
	StoredEvents int `json:"stored_events"`

	// EventsByKind breaks TotalEvents down by event kind.
	EventsByKind map[string]int64 `json:"events_by_kind"`
}

// ring is a fixed-capacity event buffer where the newest event wins: once
// full, each store overwrites the oldest retained event.
type ring struct {
	events []StoredEvent
	next   int
	filled bool
}

func (r *ring) store(e StoredEvent) {
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.filled = true
	}
}

func (r *ring) len() int {
	if r.filled {
		return len(r.events)
	}

	return r.next
}

// newestFirst returns up to limit retained events, newest first.
func (r *ring) newestFirst(limit int) []StoredEvent {
	count := r.len()
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]StoredEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, r.events[(r.next-i+len(r.events))%len(r.events)])
	}

	return out
}

// Store is the bounded in-memory event store: one ring per device plus
// running aggregate counters.  Instances are safe for concurrent access.
type Store struct {
	lock     sync.RWMutex
	ringSize int
	rings    map[uint32]*ring

	totalEvents      int64
	totalBatches     int64
	rejectedEvents   int64
	droppedByDevices int64
	byKind           map[string]int64
}

// NewStore constructs a Store retaining up to ringSize events per device.
// A nonpositive ringSize selects DefaultRingSize.
func NewStore(ringSize int) *Store {
	if ringSize < 1 {
		ringSize = DefaultRingSize
	}

	return &Store{
		ringSize: ringSize,
		rings:    make(map[uint32]*ring),
		byKind:   make(map[string]int64),
	}
}

// storeBatch retains the given events for one device and advances the
// aggregate counters.
func (s *Store) storeBatch(fingerprint uint32, events []StoredEvent, rejected int, queue *QueueStatus) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r := s.rings[fingerprint]
	if r == nil {
		r = &ring{events: make([]StoredEvent, s.ringSize)}
		s.rings[fingerprint] = r
	}

	for _, e := range events {
		r.store(e)
		s.totalEvents++
		s.byKind[e.Kind]++
	}

	s.totalBatches++
	s.rejectedEvents += int64(rejected)
	if queue != nil {
		s.droppedByDevices += int64(queue.Dropped)
	}
}

// EventCount returns the count of events currently retained across all
// devices.  The health monitor reports this value.
func (s *Store) EventCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	total := 0
	for _, r := range s.rings {
		total += r.len()
	}

	return total
}

// DeviceEvents returns up to limit retained events for one device, newest
// first.  An unknown fingerprint yields an empty slice.
func (s *Store) DeviceEvents(fingerprint uint32, limit int) []StoredEvent {
	s.lock.RLock()
	defer s.lock.RUnlock()

	r := s.rings[fingerprint]
	if r == nil {
		return []StoredEvent{}
	}

	return r.newestFirst(limit)
}

// Summary aggregates the store's counters into one snapshot.
func (s *Store) Summary() Summary {
	s.lock.RLock()
	defer s.lock.RUnlock()

	stored := 0
	for _, r := range s.rings {
		stored += r.len()
	}

	return Summary{
		TotalEvents:      s.totalEvents,
		TotalBatches:     s.totalBatches,
		RejectedEvents:   s.rejectedEvents,
		DroppedByDevices: s.droppedByDevices,
		Devices:          len(s.rings),
		StoredEvents:     stored,
		EventsByKind:     maps.Clone(s.byKind),
	}
}

// Fingerprints returns the distinct device fingerprints seen, ascending.
func (s *Store) Fingerprints() []uint32 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	fingerprints := maps.Keys(s.rings)
	sort.Slice(fingerprints, func(i, j int) bool { return fingerprints[i] < fingerprints[j] })
	return fingerprints
}
