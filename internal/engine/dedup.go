package engine

import (
	"sync"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Deduplicator tracks which post owns each content hash within one run.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]types.PostKey
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]types.PostKey, estimatedCapacity),
	}
}

// Claim assigns hash to key. It returns false if a different post already
// owns the hash; re-claiming by the same key succeeds.
func (d *Deduplicator) Claim(hash string, key types.PostKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.seen[hash]; ok {
		return owner == key
	}
	d.seen[hash] = key
	return true
}

// Seed records owners from an earlier run. A hash already claimed in this
// run keeps its owner.
func (d *Deduplicator) Seed(owners map[string]types.PostKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for hash, key := range owners {
		if _, ok := d.seen[hash]; !ok {
			d.seen[hash] = key
		}
	}
}

// Owner returns the key holding hash, if any.
func (d *Deduplicator) Owner(hash string) (types.PostKey, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.seen[hash]
	return k, ok
}

// Count returns the number of distinct hashes claimed.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// topicSet is a mutex-guarded set of topic IDs.
type topicSet struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func newTopicSet() *topicSet {
	return &topicSet{seen: make(map[int64]struct{})}
}

// add reports whether id was not yet present.
func (s *topicSet) add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *topicSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
