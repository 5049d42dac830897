package analytics

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/clock"
)

const (
	// dedupeCacheSize bounds the remembered batch ids.  A duplicate batch id
	// inside this retention window is acknowledged without re-storing; one
	// that has aged out is treated as new, which keeps ingest at-most-once
	// only for plausible retransmission intervals.
	dedupeCacheSize = 8192

	// throttleCacheSize bounds the tracked per-device rate states.  Devices
	// evicted under load simply start a fresh window.
	throttleCacheSize = 4096
)

// rateState tracks one device's uploads within the current throttle window.
type rateState struct {
	windowStart time.Time
	batches     int
}

// IngestorOptions configures an Ingestor.
type IngestorOptions struct {
	// Policy is the ingest limit set.  Zero fields fall back to defaults.
	Policy Policy

	// Store receives accepted events.  Required.
	Store *Store

	// Clock supplies the time source for receive stamps and throttle
	// windows.  If nil, the system clock is used.
	Clock clock.Interface

	// Logger is the output sink for log messages.  If nil, the sallust
	// default logger is used.
	Logger *zap.Logger

	// Measures holds the ingest metrics.  The zero value discards.
	Measures Measures
}

// Ingestor is the telemetry intake pipeline: validate, throttle,
// deduplicate, store, acknowledge.
type Ingestor struct {
	policy   Policy
	store    *Store
	clock    clock.Interface
	logger   *zap.Logger
	measures Measures

	seen  *lru.Cache[string, struct{}]
	rates *lru.Cache[uint32, *rateState]
}

// NewIngestor constructs an Ingestor from the given options.
func NewIngestor(o IngestorOptions) *Ingestor {
	c := o.Clock
	if c == nil {
		c = clock.System()
	}

	logger := o.Logger
	if logger == nil {
		logger = sallust.Default()
	}

	store := o.Store
	if store == nil {
		store = NewStore(0)
	}

	// lru.New only fails on a nonpositive size
	seen, _ := lru.New[string, struct{}](dedupeCacheSize)
	rates, _ := lru.New[uint32, *rateState](throttleCacheSize)

	return &Ingestor{
		policy:   o.Policy,
		store:    store,
		clock:    c,
		logger:   logger,
		measures: o.Measures,
		seen:     seen,
		rates:    rates,
	}
}

// Store exposes the backing store for the read-side handlers and the health
// monitor.
func (i *Ingestor) Store() *Store {
	return i.store
}

// Ingest is the single logical RPC of the analytics surface.  Whole-batch
// rejections return a receipt with Accepted false; per-event rejections echo
// the offending ids while their valid siblings land.  A duplicate batch id
// is acknowledged as accepted without re-storing anything.
func (i *Ingestor) Ingest(b Batch) Receipt {
	receipt := Receipt{
		BatchID: b.BatchID,
		Policy:  i.policy,
	}

	if err := i.policy.validateBatch(b); err != nil {
		i.measures.countBatch("rejected")
		i.logger.Debug("rejecting batch",
			zap.Uint32("fingerprint", b.DeviceFingerprint),
			zap.Error(err),
		)
		return receipt
	}

	receipt.ThrottleMillis = i.throttle(b.DeviceFingerprint)

	if duplicate, _ := i.seen.ContainsOrAdd(string(b.BatchID), struct{}{}); duplicate {
		i.measures.countBatch("duplicate")
		receipt.Accepted = true
		return receipt
	}

	now := i.clock.Now().UTC()
	stored := make([]StoredEvent, 0, len(b.Events))
	for _, e := range b.Events {
		if !i.policy.validEvent(e) {
			receipt.RejectedEventIDs = append(receipt.RejectedEventIDs, e.EventID)
			continue
		}

		stored = append(stored, StoredEvent{
			Fingerprint: b.DeviceFingerprint,
			EventID:     e.EventID,
			Kind:        e.Kind,
			RecordedAt:  time.UnixMilli(e.RecordedAtMillis).UTC(),
			ReceivedAt:  now,
			Payload:     e.Payload,
		})
	}

	i.store.storeBatch(b.DeviceFingerprint, stored, len(receipt.RejectedEventIDs), b.QueueStatus)
	i.measures.countBatch("accepted")
	i.measures.addEvents(len(stored), len(receipt.RejectedEventIDs))

	receipt.Accepted = true
	return receipt
}

// throttle advances the device's rate state and returns the backoff to
// request, in millis, or zero.
func (i *Ingestor) throttle(fingerprint uint32) int64 {
	if i.policy.ThrottleAfter < 1 || i.policy.Throttle <= 0 {
		return 0
	}

	now := i.clock.Now()
	state, ok := i.rates.Get(fingerprint)
	if !ok || now.Sub(state.windowStart) >= i.policy.Throttle {
		i.rates.Add(fingerprint, &rateState{windowStart: now, batches: 1})
		return 0
	}

	state.batches++
	if state.batches <= i.policy.ThrottleAfter {
		return 0
	}

	i.measures.countBatch("throttled")
	remaining := i.policy.Throttle - now.Sub(state.windowStart)
	return remaining.Milliseconds()
}
