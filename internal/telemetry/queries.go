package telemetry

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse search latency class.
type LatencyBucket string

const (
	BucketSub1ms  LatencyBucket = "lt1ms"
	BucketSub10ms LatencyBucket = "lt10ms"
	BucketSub100  LatencyBucket = "lt100ms"
	BucketSlow    LatencyBucket = "ge100ms"
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < time.Millisecond:
		return BucketSub1ms
	case d < 10*time.Millisecond:
		return BucketSub10ms
	case d < 100*time.Millisecond:
		return BucketSub100
	default:
		return BucketSlow
	}
}

// Ring is a fixed-capacity FIFO; the oldest item is overwritten when full.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns the contents oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.size)
	if r.size < len(r.items) {
		copy(out, r.items[:r.size])
		return out
	}
	n := copy(out, r.items[r.head:])
	copy(out[n:], r.items[:r.head])
	return out
}

func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.size = 0, 0
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Kind    string
	Text    string
	Results int
	Latency time.Duration
}

// TermCount is a searched term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySnapshot summarizes recent query activity.
type QuerySnapshot struct {
	Total       int64                   `json:"total"`
	ByKind      map[string]int64        `json:"by_kind"`
	ZeroResults int64                   `json:"zero_results"`
	RecentZero  []string                `json:"recent_zero_result_terms"`
	TopTerms    []TermCount             `json:"top_terms"`
	Latency     map[LatencyBucket]int64 `json:"latency"`
	Since       time.Time               `json:"since"`
}

// QueryLogConfig sizes the query log.
type QueryLogConfig struct {
	TopTermsCapacity   int
	ZeroResultCapacity int
}

// DefaultQueryLogConfig returns the default sizes.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{TopTermsCapacity: 100, ZeroResultCapacity: 50}
}

// QueryLog aggregates searches in memory. Safe for concurrent use.
type QueryLog struct {
	mu          sync.Mutex
	total       int64
	byKind      map[string]int64
	zeroResults int64
	latency     map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	recentZero  *Ring[string]
	since       time.Time
}

// NewQueryLog creates a query log.
func NewQueryLog(cfg QueryLogConfig) *QueryLog {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = DefaultQueryLogConfig().TopTermsCapacity
	}
	if cfg.ZeroResultCapacity <= 0 {
		cfg.ZeroResultCapacity = DefaultQueryLogConfig().ZeroResultCapacity
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &QueryLog{
		byKind:     make(map[string]int64),
		latency:    make(map[LatencyBucket]int64),
		topTerms:   topTerms,
		recentZero: NewRing[string](cfg.ZeroResultCapacity),
		since:      time.Now(),
	}
}

// Record adds one search to the log.
func (q *QueryLog) Record(ev QueryEvent) {
	if q == nil {
		return
	}
	key := ev.Kind + ":" + ev.Text

	q.mu.Lock()
	defer q.mu.Unlock()
	q.total++
	q.byKind[ev.Kind]++
	q.latency[LatencyToBucket(ev.Latency)]++
	if ev.Results == 0 {
		q.zeroResults++
		q.recentZero.Add(key)
	}
	count, _ := q.topTerms.Get(key)
	q.topTerms.Add(key, count+1)
}

// Snapshot returns a copy of the aggregates. TopTerms holds at most limit
// entries ordered by count, then term.
func (q *QueryLog) Snapshot(limit int) QuerySnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := QuerySnapshot{
		Total:       q.total,
		ByKind:      make(map[string]int64, len(q.byKind)),
		ZeroResults: q.zeroResults,
		RecentZero:  q.recentZero.Items(),
		Latency:     make(map[LatencyBucket]int64, len(q.latency)),
		Since:       q.since,
	}
	for k, v := range q.byKind {
		snap.ByKind[k] = v
	}
	for k, v := range q.latency {
		snap.Latency[k] = v
	}
	for _, key := range q.topTerms.Keys() {
		if count, ok := q.topTerms.Peek(key); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		if snap.TopTerms[i].Count != snap.TopTerms[j].Count {
			return snap.TopTerms[i].Count > snap.TopTerms[j].Count
		}
		return snap.TopTerms[i].Term < snap.TopTerms[j].Term
	})
	if limit > 0 && len(snap.TopTerms) > limit {
		snap.TopTerms = snap.TopTerms[:limit]
	}
	return snap
}

// Reset clears every aggregate.
func (q *QueryLog) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.total, q.zeroResults = 0, 0
	q.byKind = make(map[string]int64)
	q.latency = make(map[LatencyBucket]int64)
	q.topTerms.Purge()
	q.recentZero.Clear()
	q.since = time.Now()
}
