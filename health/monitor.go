package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/clock"
)

// DefaultInterval is the collection interval used when none is configured.
const DefaultInterval = 15 * time.Second

// Source supplies the current value for one registered stat.  Sources are
// polled on each collection tick, e.g. connected session counts or the
// number of pending acknowledgements.
type Source func() int

// MonitorOptions configures a health Monitor.  The zero value is usable.
type MonitorOptions struct {
	// Interval is the collection period.  DefaultInterval is used when
	// nonpositive.
	Interval time.Duration

	// MemoryCeiling is the heap allocation, in bytes, above which the
	// monitor reports unhealthy.  A nonpositive ceiling disables the check.
	MemoryCeiling int

	Logger *zap.Logger
	Clock  clock.Interface

	// MemInfo overrides where system memory information is read from.
	MemInfo *MemInfoReader

	// Initial is applied to the stats map before the monitor starts.
	Initial []Option
}

// Monitor periodically collects hub statistics and serves the latest
// snapshot over HTTP.  All stat mutation happens on the monitor goroutine;
// readers only ever see cloned snapshots.
type Monitor struct {
	logger        *zap.Logger
	clock         clock.Interface
	interval      time.Duration
	memoryCeiling int
	memInfo       *MemInfoReader

	event chan HealthFunc

	lock     sync.RWMutex
	sources  map[Stat]Source
	snapshot Stats

	stats Stats

	startOnce sync.Once
	closeOnce sync.Once
	shutdown  chan struct{}
	done      chan struct{}
}

// New constructs an unstarted Monitor.
func New(o MonitorOptions) *Monitor {
	logger := o.Logger
	if logger == nil {
		logger = sallust.Default()
	}

	c := o.Clock
	if c == nil {
		c = clock.System()
	}

	interval := o.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	memInfo := o.MemInfo
	if memInfo == nil {
		memInfo = &MemInfoReader{}
	}

	stats := commonStats.Clone()
	stats.Apply(o.Initial...)

	return &Monitor{
		logger:        logger,
		clock:         c,
		interval:      interval,
		memoryCeiling: o.MemoryCeiling,
		memInfo:       memInfo,
		event:         make(chan HealthFunc, 100),
		sources:       make(map[Stat]Source),
		snapshot:      stats.Clone(),
		stats:         stats,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// RegisterSource associates a stat with a function polled on each collection
// tick.  Registering again under the same stat replaces the source.
func (m *Monitor) RegisterSource(stat Stat, source Source) {
	m.lock.Lock()
	m.sources[stat] = source
	m.lock.Unlock()
}

// SendEvent queues a mutation of the stats map onto the monitor goroutine.
// Events sent after Close are discarded.
func (m *Monitor) SendEvent(hf HealthFunc) {
	select {
	case m.event <- hf:
	case <-m.shutdown:
	}
}

// Start launches the collection goroutine.  Start is idempotent.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Close stops collection.  The snapshot remains servable afterward.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.shutdown)
	})

	return nil
}

func (m *Monitor) run() {
	m.logger.Debug("health monitor started")
	ticker := m.clock.NewTicker(m.interval)

	defer func() {
		ticker.Stop()
		m.logger.Debug("health monitor stopped")
		close(m.done)
	}()

	m.collect()
	for {
		select {
		case <-m.shutdown:
			return
		case hf := <-m.event:
			hf(m.stats)
			m.publish()
		case <-ticker.C():
			m.collect()
		}
	}
}

// collect refreshes memory stats, polls every registered source, and
// publishes a fresh snapshot.
func (m *Monitor) collect() {
	m.stats.UpdateMemory(m.memInfo)

	m.lock.RLock()
	polled := make(map[Stat]int, len(m.sources))
	for stat, source := range m.sources {
		polled[stat] = source()
	}
	m.lock.RUnlock()

	for stat, value := range polled {
		m.stats[stat] = value
	}

	m.publish()
}

func (m *Monitor) publish() {
	snapshot := m.stats.Clone()
	m.lock.Lock()
	m.snapshot = snapshot
	m.lock.Unlock()
}

// Snapshot returns a copy of the most recently collected stats.
func (m *Monitor) Snapshot() Stats {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot.Clone()
}

// Healthy reports whether the latest snapshot is under the memory ceiling.
func (m *Monitor) Healthy() bool {
	return m.healthy(m.Snapshot())
}

func (m *Monitor) healthy(snapshot Stats) bool {
	if m.memoryCeiling <= 0 {
		return true
	}

	return snapshot[CurrentMemoryUtilizationAlloc] <= m.memoryCeiling
}

// ServeHTTP answers with the latest snapshot as JSON.  The status code is
// 200 while healthy and 503 once the memory ceiling is breached, so load
// balancers can act on the code alone.
func (m *Monitor) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	snapshot := m.Snapshot()

	body, err := json.Marshal(snapshot)
	if err != nil {
		m.logger.Error("could not marshal health stats", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if !m.healthy(snapshot) {
		code = http.StatusServiceUnavailable
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)
	response.Write(body)
}
