package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// totals are the cumulative counters copied into each bucket.
type totals struct {
	requests   int64
	successes  int64
	failures   int64
	bytes      int64
	iterations int64
}

// TimeBucketStore stores time-bucketed metrics in a ring buffer.
//
// Once full, the oldest bucket is overwritten. Interval accumulators are
// updated lock-free; the ring itself is guarded by a RWMutex.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int // Next write position
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	// Current interval accumulator
	currentRequests atomic.Int64
	currentFailures atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
// For a 20 minute run with 1-second buckets, 1200 is enough.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds a request to the current interval.
func (tbs *TimeBucketStore) RecordRequest(success bool) {
	tbs.currentRequests.Add(1)
	if !success {
		tbs.currentFailures.Add(1)
	}
}

// CreateBucket closes the current interval and appends it to the ring.
func (tbs *TimeBucketStore) CreateBucket(t totals, latencies LatencyPercentiles, activeVUs int, phase Phase) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalRequests := tbs.currentRequests.Swap(0)
	intervalFailures := tbs.currentFailures.Swap(0)

	intervalDuration := now.Sub(tbs.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	bucket := &TimeBucket{
		Timestamp:         now,
		TotalRequests:     t.requests,
		TotalSuccesses:    t.successes,
		TotalFailures:     t.failures,
		TotalBytes:        t.bytes,
		TotalIterations:   t.iterations,
		IntervalRequests:  intervalRequests,
		IntervalRPS:       float64(intervalRequests) / intervalDuration,
		IntervalErrorRate: intervalErrorRate,
		LatencyMin:        latencies.Min,
		LatencyMax:        latencies.Max,
		LatencyP50:        latencies.P50,
		LatencyP90:        latencies.P90,
		LatencyP95:        latencies.P95,
		LatencyP99:        latencies.P99,
		ActiveVUs:         activeVUs,
		Phase:             phase,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns a copy of all buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	start := 0
	if tbs.count == tbs.maxBuckets {
		start = tbs.head
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(start+i)%tbs.maxBuckets]
	}

	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	idx := (tbs.head - 1 + tbs.maxBuckets) % tbs.maxBuckets
	return tbs.buckets[idx]
}

// CalculateSteadyStateRPS averages the interval RPS of steady buckets.
// It returns the number of buckets used as well.
func (tbs *TimeBucketStore) CalculateSteadyStateRPS() (float64, int) {
	var (
		sum   float64
		count int
	)
	for _, b := range tbs.GetBuckets() {
		if b.Phase != PhaseSteady {
			continue
		}
		sum += b.IntervalRPS
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}
