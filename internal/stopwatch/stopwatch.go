// Package stopwatch accumulates repeated duration measurements and
// reports their average and spread.
package stopwatch

import (
	"math"
	"time"
)

// Stopwatch measures repeated Start/Stop intervals in microseconds.
// The zero value is ready to use. Not safe for concurrent use.
type Stopwatch struct {
	startTime time.Time
	last      int64
	count     int64
	sum       int64
	sumSq     int64
}

func (s *Stopwatch) Start() {
	s.startTime = time.Now()
}

// Stop records the time elapsed since the last Start as one sample.
func (s *Stopwatch) Stop() {
	s.record(time.Since(s.startTime).Microseconds())
}

func (s *Stopwatch) record(sample int64) {
	s.last = sample
	s.count++
	s.sum += sample
	s.sumSq += sample * sample
}

// Last returns the most recent sample in microseconds.
func (s *Stopwatch) Last() int64 {
	return s.last
}

// Count returns the number of recorded samples.
func (s *Stopwatch) Count() int64 {
	return s.count
}

// Avg returns the mean sample in microseconds, zero with no samples.
func (s *Stopwatch) Avg() int64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / s.count
}

// Std returns the sample standard deviation in microseconds, zero
// with fewer than two samples.
func (s *Stopwatch) Std() int64 {
	if s.count < 2 {
		return 0
	}
	variance := float64(s.count*s.sumSq-s.sum*s.sum) / float64(s.count*(s.count-1))
	return int64(math.Sqrt(variance))
}

// Reset discards all samples.
func (s *Stopwatch) Reset() {
	*s = Stopwatch{}
}
