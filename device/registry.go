package device

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// registry is the sharded storage of live sessions, keyed by device ID.
// It is dumb storage: all lifecycle decisions (closing, events, metrics)
// belong to the enclosing manager.
type registry struct {
	limit  int
	count  int32
	shards []*registryShard
}

type registryShard struct {
	lock     sync.RWMutex
	sessions map[ID]*session
}

func newRegistry(shards, limit int) *registry {
	if shards < 1 {
		shards = DefaultShards
	}

	r := &registry{
		limit:  limit,
		shards: make([]*registryShard, shards),
	}

	for i := range r.shards {
		r.shards[i] = &registryShard{
			sessions: make(map[ID]*session),
		}
	}

	return r
}

func (r *registry) shardFor(id ID) *registryShard {
	hasher := fnv.New32a()
	hasher.Write(id.Bytes())
	return r.shards[hasher.Sum32()%uint32(len(r.shards))]
}

// add registers the given session if its ID is unoccupied.  If another
// session already holds the ID, that incumbent is returned without any
// change to the registry; the caller must tear it down and try again.
// The limit is enforced only on actual insertion.
func (r *registry) add(s *session) (*session, error) {
	shard := r.shardFor(s.id)

	shard.lock.Lock()
	defer shard.lock.Unlock()

	if existing, ok := shard.sessions[s.id]; ok {
		return existing, nil
	}

	if r.limit > 0 && int(atomic.AddInt32(&r.count, 1)) > r.limit {
		atomic.AddInt32(&r.count, -1)
		return nil, ErrorDeviceLimitReached
	} else if r.limit <= 0 {
		atomic.AddInt32(&r.count, 1)
	}

	shard.sessions[s.id] = s
	return nil, nil
}

// removeSession deletes the given session from the registry only if it is
// still the registered holder of its ID.  Pointer-matched so that tearing
// down a replaced session never evicts its successor.
func (r *registry) removeSession(s *session) bool {
	shard := r.shardFor(s.id)

	shard.lock.Lock()
	defer shard.lock.Unlock()

	if existing, ok := shard.sessions[s.id]; ok && existing == s {
		delete(shard.sessions, s.id)
		atomic.AddInt32(&r.count, -1)
		return true
	}

	return false
}

func (r *registry) get(id ID) (*session, bool) {
	shard := r.shardFor(id)

	shard.lock.RLock()
	s, ok := shard.sessions[id]
	shard.lock.RUnlock()

	return s, ok
}

func (r *registry) len() int {
	return int(atomic.LoadInt32(&r.count))
}

// visit applies the visitor to each registered session until the visitor
// returns false, returning the number of sessions visited.  The shard lock
// is held during each invocation; visitors must not call back into the
// registry or its manager.
func (r *registry) visit(visitor func(*session) bool) int {
	visited := 0
	for _, shard := range r.shards {
		shard.lock.RLock()
		for _, s := range shard.sessions {
			visited++
			if !visitor(s) {
				shard.lock.RUnlock()
				return visited
			}
		}
		shard.lock.RUnlock()
	}

	return visited
}

// snapshot returns all registered sessions at a point in time, shard by
// shard.  Unlike visit, the returned slice may be used freely without locks.
func (r *registry) snapshot() []*session {
	all := make([]*session, 0, 64)
	for _, shard := range r.shards {
		shard.lock.RLock()
		for _, s := range shard.sessions {
			all = append(all, s)
		}
		shard.lock.RUnlock()
	}

	return all
}
