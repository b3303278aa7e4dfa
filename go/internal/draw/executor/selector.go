package executor

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks an index in [0, n).
type Selector interface {
	Pick(n int) int
}

// RandomSelector picks uniformly with its own seeded source.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector constructs a RandomSelector seeded from the clock.
func NewRandomSelector() *RandomSelector {
	return NewSeededSelector(time.Now().UnixNano())
}

// NewSeededSelector constructs a RandomSelector with a fixed seed.
func NewSeededSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

// Pick implements Selector.
func (s *RandomSelector) Pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
