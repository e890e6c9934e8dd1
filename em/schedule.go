package em

import (
	"math"
	"sync"

	"github.com/grailbio/sdafish/logmath"
)

// phi is the forgetting-factor exponent in the decaying mini-batch
// schedule. Fixed, not configurable: every quantification run uses the
// same decay rate.
const phi = 0.65

// ForgettingSchedule holds the single piece of cross-batch global state in
// the whole pipeline: the running forgetting log-mass. Its critical
// section is a handful of float64 ops, so a plain mutex (rather than the
// spinlock-shard idiom used for per-transcript/per-cluster updates) is the
// right tool — there is exactly one of these per quantification run, so it
// can never benefit from sharding.
type ForgettingSchedule struct {
	mu       sync.Mutex
	logFM    float64
	batchNum uint64
}

// NewForgettingSchedule starts the schedule at log_fm = LOG_1 (full mass),
// batch 0.
func NewForgettingSchedule() *ForgettingSchedule {
	return &ForgettingSchedule{logFM: logmath.LOG_1}
}

// LogMass returns the current forgetting log-mass.
func (s *ForgettingSchedule) LogMass() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logFM
}

// Advance records the completion of one mini-batch and returns the updated
// forgetting log-mass, the value the next batch reads. The batch counter n is incremented
// first, then the decay is applied if n > 1, matching the schedule in the
// data model: increment n; if n > 1, log_fm += phi*log(n-1) - log(n^phi - 1).
func (s *ForgettingSchedule) Advance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchNum++
	n := s.batchNum
	if n > 1 {
		s.logFM += phi*math.Log(float64(n-1)) - math.Log(math.Pow(float64(n), phi)-1)
	}
	return s.logFM
}
