package clusterforest

import (
	"runtime"
	"sync/atomic"
)

// spinlock is the same test-and-set lock package transcript uses
// to guard its per-shard read-modify-write updates: the critical sections
// here (a log-add, a member-slice append) are short enough that spinning
// beats parking a goroutine through sync.Mutex.
type spinlock struct {
	state uint32
}

func (s *spinlock) lock() {
	for !atomic.CompareAndSwapUint32(&s.state, 0, 1) {
		runtime.Gosched()
	}
}

func (s *spinlock) unlock() {
	atomic.StoreUint32(&s.state, 0)
}
