// Package rng provides the seeded, fork-per-session PRNG used for every
// randomized combat decision. Given the same seed and the same draw order,
// all outcomes are identical across runs and across hosts.
package rng

// Source is a splitmix64 generator. The entire generator state is a single
// uint64, which makes it trivial to snapshot into a save slot and restore.
type Source struct {
	state uint64
}

// New returns a Source seeded from the session seed.
func New(seed int64) *Source {
	return &Source{state: uint64(seed)}
}

// Restore rebuilds a Source from a previously snapshotted state.
func Restore(state uint64) *Source {
	return &Source{state: state}
}

// State returns the current generator state for persistence.
func (s *Source) State() uint64 {
	return s.state
}

// Fork derives an independent child generator. The parent advances by one
// draw, so sibling forks never share a stream.
func (s *Source) Fork() *Source {
	return &Source{state: s.next()}
}

// next advances the splitmix64 state and returns the next 64-bit value.
func (s *Source) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Uint64 returns the next raw 64-bit value.
func (s *Source) Uint64() uint64 {
	return s.next()
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). n <= 0 returns 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.next() % uint64(n))
}

// Range returns a value in [min, max] inclusive.
func (s *Source) Range(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.Intn(max-min+1)
}

// Chance returns true with probability p.
func (s *Source) Chance(p float64) bool {
	return s.Float64() < p
}
