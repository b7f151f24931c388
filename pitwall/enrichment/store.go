package enrichment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
)

// Key identifies one event.
type Key struct {
	Season int
	Round  int
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d", k.Season, k.Round)
}

// Store is the append-only payload map. Reads never lock; the first write of
// a key wins and later writes are ignored. Entries are never evicted.
type Store struct {
	entries sync.Map // Key -> *Payload
	count   atomic.Int64

	mu    sync.RWMutex
	index map[int]*roaring.Bitmap // season -> cached rounds
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[int]*roaring.Bitmap)}
}

// Get returns the payload stored for key.
func (s *Store) Get(key Key) (*Payload, bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Payload), true
}

// Has reports whether key is cached.
func (s *Store) Has(key Key) bool {
	_, ok := s.entries.Load(key)
	return ok
}

// Put stores p under key unless key is already present. It reports whether
// p was stored.
func (s *Store) Put(key Key, p *Payload) bool {
	if _, loaded := s.entries.LoadOrStore(key, p); loaded {
		return false
	}
	s.count.Add(1)

	s.mu.Lock()
	bm, ok := s.index[key.Season]
	if !ok {
		bm = roaring.New()
		s.index[key.Season] = bm
	}
	bm.Add(uint32(key.Round))
	s.mu.Unlock()
	return true
}

// Len returns the number of cached payloads.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// Rounds lists the cached rounds of season in ascending order.
func (s *Store) Rounds(season int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.index[season]
	if !ok {
		return nil
	}
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// Missing returns the rounds in want that are not cached for season.
func (s *Store) Missing(season int, want []int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm := s.index[season]
	var out []int
	for _, r := range want {
		if bm == nil || !bm.Contains(uint32(r)) {
			out = append(out, r)
		}
	}
	return out
}
