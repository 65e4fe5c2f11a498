package breaker

import "time"

// window is a rolling success/failure counter over a fixed time span,
// bucketed so old outcomes age out without a per-call timer.
type window struct {
	span    time.Duration
	bucket  time.Duration
	buckets []counts
}

// counts is one bucket of outcomes.
type counts struct {
	start     time.Time
	successes int64
	failures  int64
}

// newWindow creates a window covering span with the given bucket count.
func newWindow(span time.Duration, numBuckets int) *window {
	if numBuckets <= 0 {
		numBuckets = 1
	}
	return &window{
		span:    span,
		bucket:  span / time.Duration(numBuckets),
		buckets: make([]counts, numBuckets),
	}
}

// add records one outcome at the given instant.
func (w *window) add(now time.Time, success bool) {
	w.prune(now)

	b := w.findOrCreate(now)
	if success {
		b.successes++
	} else {
		b.failures++
	}
}

// totals returns the success and failure counts inside the window.
func (w *window) totals(now time.Time) (successes, failures int64) {
	w.prune(now)

	for i := range w.buckets {
		if !w.buckets[i].start.IsZero() {
			successes += w.buckets[i].successes
			failures += w.buckets[i].failures
		}
	}
	return successes, failures
}

// reset clears all buckets.
func (w *window) reset() {
	for i := range w.buckets {
		w.buckets[i] = counts{}
	}
}

// prune clears buckets older than the window span.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	for i := range w.buckets {
		if !w.buckets[i].start.IsZero() && w.buckets[i].start.Before(cutoff) {
			w.buckets[i] = counts{}
		}
	}
}

// findOrCreate returns the bucket for the instant, reusing an empty slot or
// evicting the oldest when the ring is full.
func (w *window) findOrCreate(now time.Time) *counts {
	start := now.Truncate(w.bucket)

	for i := range w.buckets {
		if w.buckets[i].start.Equal(start) {
			return &w.buckets[i]
		}
	}

	target := -1
	for i := range w.buckets {
		if w.buckets[i].start.IsZero() {
			target = i
			break
		}
	}
	if target == -1 {
		oldest := 0
		for i := 1; i < len(w.buckets); i++ {
			if w.buckets[i].start.Before(w.buckets[oldest].start) {
				oldest = i
			}
		}
		target = oldest
	}

	w.buckets[target] = counts{start: start}
	return &w.buckets[target]
}
