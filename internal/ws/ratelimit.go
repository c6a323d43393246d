package ws

import "time"

// Category buckets rate-limited client traffic.
type Category string

const (
	CatAction Category = "action"
	CatChat   Category = "chat"
)

// limiter is a per-connection sliding-window counter. It is touched only on
// the manager goroutine, so it carries no lock.
type limiter struct {
	window time.Duration
	limits map[Category]int
	hits   map[Category][]time.Time
}

func newLimiter(window time.Duration, action, chat int) *limiter {
	return &limiter{
		window: window,
		limits: map[Category]int{CatAction: action, CatChat: chat},
		hits:   map[Category][]time.Time{},
	}
}

// allow records one hit and reports whether it stays inside the window
// limit. A zero or negative limit disables the category.
func (l *limiter) allow(cat Category, now time.Time) bool {
	limit := l.limits[cat]
	if limit <= 0 {
		return true
	}
	cutoff := now.Add(-l.window)
	hits := l.hits[cat]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.hits[cat] = kept
		return false
	}
	l.hits[cat] = append(kept, now)
	return true
}
