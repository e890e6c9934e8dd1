// Package transcript holds the per-transcript accumulators the
// quantification core updates concurrently: total and unique read counts,
// shared-count (fractional credit for ambiguous reads), and the running
// log-space mass. All of it is immutable metadata plus a handful of hot
// counters; the read-modify-write updates are guarded by a sharded lock
// table, to avoid a global lock on the mapping fast path.
package transcript

import (
	"math"
	"sync/atomic"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/sdafish/logmath"
)

const numLockShards = 1024

// Transcript is one entry of the reference transcriptome. ID, Name, and
// RefLength are fixed at load time; the remaining fields are updated by
// many worker goroutines over the lifetime of a quantification run.
type Transcript struct {
	ID        uint32
	Name      string
	RefLength uint32

	uniqueCount uint64 // atomic
	totalCount  uint64 // atomic

	sharedCount uint64 // atomic, float64 bits
	logMass     uint64 // atomic, float64 bits
}

// UniqueCount returns the current unique-read count.
func (t *Transcript) UniqueCount() uint64 { return atomic.LoadUint64(&t.uniqueCount) }

// TotalCount returns the current total-read count.
func (t *Transcript) TotalCount() uint64 { return atomic.LoadUint64(&t.totalCount) }

// SharedCount returns the current fractional shared-read credit.
func (t *Transcript) SharedCount() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.sharedCount))
}

// LogMass returns the current log-space mass estimate. A transcript in a
// Table built by NewTable starts at the uniform prior log(1/N).
func (t *Transcript) LogMass() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.logMass))
}

// Table is the full set of transcripts in the reference, indexed by
// transcript id, plus the sharded spinlocks guarding the non-atomic
// read-modify-write updates (log-add, shared-count accumulation).
type Table struct {
	entries []*Transcript
	locks   [numLockShards]spinlock
}

// NewTable builds a Table over the given transcripts, which must be ordered
// by ID with no gaps (entries[i].ID == i). Every transcript's log-mass is
// seeded to the uniform prior log(1/N): the E-step's LOG_0 branch (§4.5)
// only ever fires for a transcript with no entries at all, not for every
// transcript in the very first mini-batch — without a nonzero starting
// mass, no read's alignment probability could ever become nonzero and the
// online EM could never bootstrap itself.
func NewTable(entries []*Transcript) *Table {
	initLogMass := logmath.LOG_1 - math.Log(float64(len(entries)))
	bits := math.Float64bits(initLogMass)
	for _, t := range entries {
		atomic.StoreUint64(&t.logMass, bits)
	}
	return &Table{entries: entries}
}

// Len returns the number of transcripts in the table.
func (tb *Table) Len() int { return len(tb.entries) }

// Get returns the transcript with the given id, or nil if id is out of
// range (a corrupt-index condition the caller should log and skip).
func (tb *Table) Get(id uint32) *Transcript {
	if int(id) >= len(tb.entries) {
		return nil
	}
	return tb.entries[id]
}

// All returns the full transcript slice, indexed by id. The slice and its
// Transcript pointers are shared by reference; callers must not mutate the
// immutable fields.
func (tb *Table) All() []*Transcript { return tb.entries }

func (tb *Table) shardFor(id uint32) *spinlock {
	var buf [4]byte
	buf[0] = byte(id)
	buf[1] = byte(id >> 8)
	buf[2] = byte(id >> 16)
	buf[3] = byte(id >> 24)
	h := seahash.Sum64(buf[:])
	return &tb.locks[h%numLockShards]
}

// AddTotalCount increments T.total_count by delta. Called the first time a
// read observes this transcript.
func (tb *Table) AddTotalCount(t *Transcript, delta uint64) {
	atomic.AddUint64(&t.totalCount, delta)
}

// AddUniqueCount increments T.unique_count by delta. Called when a read
// maps unambiguously to this transcript.
func (tb *Table) AddUniqueCount(t *Transcript, delta uint64) {
	atomic.AddUint64(&t.uniqueCount, delta)
}

// AddSharedCount adds delta (a fractional read-credit) to T.shared_count
// under this transcript's lock shard.
func (tb *Table) AddSharedCount(t *Transcript, delta float64) {
	shard := tb.shardFor(t.ID)
	shard.lock()
	cur := math.Float64frombits(atomic.LoadUint64(&t.sharedCount))
	atomic.StoreUint64(&t.sharedCount, math.Float64bits(cur+delta))
	shard.unlock()
}

// AddLogMass log-adds updateMass into T.log_mass under this transcript's
// lock shard: T.log_mass = log_add(T.log_mass, updateMass).
func (tb *Table) AddLogMass(t *Transcript, updateMass float64) {
	shard := tb.shardFor(t.ID)
	shard.lock()
	cur := math.Float64frombits(atomic.LoadUint64(&t.logMass))
	atomic.StoreUint64(&t.logMass, math.Float64bits(logmath.Add(cur, updateMass)))
	shard.unlock()
}
