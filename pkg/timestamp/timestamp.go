// Package timestamp converts raw device and backend timestamps into a
// consistent absolute/relative time base shared by all telemetry consumers.
package timestamp

import (
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
)

const (
	// DefaultCacheExpiry bounds how long a normalized result may be reused.
	DefaultCacheExpiry = time.Second

	// DefaultMaxCacheEntries triggers an expiry sweep once exceeded.
	DefaultMaxCacheEntries = 1000

	// millisecondFloor is the magnitude above which a raw value is already
	// an epoch-millisecond timestamp. The device feed always emits
	// milliseconds, so values above it are never rescaled as microseconds.
	millisecondFloor = int64(1e12)
)

// Normalized is the result of resolving one raw timestamp against the
// session base.
type Normalized struct {
	// AbsoluteMillis is the raw timestamp as epoch milliseconds.
	AbsoluteMillis int64
	// Relative is seconds elapsed since the session base, 0 when no base
	// has been set.
	Relative float64
	// ComputedAt records when this value was derived, for cache expiry.
	ComputedAt time.Time
}

// FormatMode selects the rendering of Format.
type FormatMode string

const (
	FormatRelative FormatMode = "relative"
	FormatDuration FormatMode = "duration"
	FormatAbsolute FormatMode = "absolute"
	FormatFull     FormatMode = "full"
)

// Normalizer caches normalized timestamps keyed by their raw value.
// A single shared instance can be obtained with Default; independent
// instances via New stay fully isolated.
type Normalizer struct {
	mu         sync.Mutex
	base       int64
	hasBase    bool
	cache      *hashmap.Map[int64, Normalized]
	expiry     time.Duration
	maxEntries int
	clock      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithCacheExpiry overrides the cache entry lifetime.
func WithCacheExpiry(d time.Duration) Option {
	return func(n *Normalizer) { n.expiry = d }
}

// WithMaxCacheEntries overrides the sweep threshold.
func WithMaxCacheEntries(max int) Option {
	return func(n *Normalizer) { n.maxEntries = max }
}

// WithClock injects the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(n *Normalizer) { n.clock = clock }
}

// New creates an independent Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		cache:      hashmap.New[int64, Normalized](),
		expiry:     DefaultCacheExpiry,
		maxEntries: DefaultMaxCacheEntries,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var (
	defaultOnce sync.Once
	defaultInst *Normalizer
)

// Default returns the process-wide shared Normalizer. Components that must
// agree on one time base should receive this instance explicitly rather
// than reaching for it internally.
func Default() *Normalizer {
	defaultOnce.Do(func() {
		defaultInst = New()
	})
	return defaultInst
}

// SetBase sets the reference point for relative-time computation. The
// entire cache is invalidated: relative values computed against a previous
// base must never leak into the new session.
func (n *Normalizer) SetBase(millis int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.base = millis
	n.hasBase = true
	n.cache = hashmap.New[int64, Normalized]()
}

// Base returns the current base timestamp, if one has been set.
func (n *Normalizer) Base() (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.base, n.hasBase
}

// Normalize resolves raw against the current base, serving a cached result
// when one exists and is younger than the configured expiry.
//
// Raw values above millisecondFloor are epoch milliseconds, not
// microseconds: the device feed only ever emits milliseconds, so large
// magnitudes must not be divided down.
func (n *Normalizer) Normalize(raw int64) Normalized {
	now := n.clock()

	n.mu.Lock()
	cache := n.cache
	base, hasBase := n.base, n.hasBase
	n.mu.Unlock()

	if cached, ok := cache.Get(raw); ok && now.Sub(cached.ComputedAt) < n.expiry {
		return cached
	}

	result := Normalized{
		AbsoluteMillis: raw,
		ComputedAt:     now,
	}
	if hasBase {
		result.Relative = float64(raw-base) / 1000.0
	}

	cache.Set(raw, result)
	if cache.Len() > n.maxEntries {
		n.sweep(cache, now)
	}
	return result
}

// sweep removes entries older than the expiry window.
func (n *Normalizer) sweep(cache *hashmap.Map[int64, Normalized], now time.Time) {
	cache.Range(func(key int64, entry Normalized) bool {
		if now.Sub(entry.ComputedAt) >= n.expiry {
			cache.Del(key)
		}
		return true
	})
}

// CacheLen returns the number of cached entries.
func (n *Normalizer) CacheLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cache.Len()
}

// Format renders raw in the requested mode.
//
//	relative  "12.34s" since the session base
//	duration  "2m 5.0s", or "5.0s" when under a minute
//	absolute  local wall-clock time
//	full      local date and time
func (n *Normalizer) Format(raw int64, mode FormatMode) string {
	norm := n.Normalize(raw)

	switch mode {
	case FormatRelative:
		return fmt.Sprintf("%.2fs", norm.Relative)
	case FormatDuration:
		seconds := norm.Relative
		minutes := int(seconds / 60)
		if minutes > 0 {
			return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes)*60)
		}
		return fmt.Sprintf("%.1fs", seconds)
	case FormatAbsolute:
		return time.UnixMilli(norm.AbsoluteMillis).Format("15:04:05")
	case FormatFull:
		return time.UnixMilli(norm.AbsoluteMillis).Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%d", norm.AbsoluteMillis)
	}
}
