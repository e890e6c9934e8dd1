package transcript

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a tiny test-and-set lock. The critical sections it
// guards (a log-add or a float add) are O(1), so spinning costs less than
// parking a goroutine through sync.Mutex under the contention a 1024-way
// shard table is meant to dilute.
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
