package clusterforest

import (
	"math"
	"sync/atomic"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/sdafish/logmath"
)

const numLockShards = 1024

// node is one transcript's slot in the forest. parent/rank implement the
// union-find; logMass, hitCount, and members are root-only and guarded by
// the root's shard lock — a non-root node's copies of those fields are
// stale and must never be read directly.
type node struct {
	parent uint32 // atomic
	rank   uint32

	logMass  uint64 // float64 bits; root-only, guarded by shard lock
	hitCount uint64 // root-only, guarded by shard lock
	members  []uint32
}

// Forest is the disjoint-set forest over transcript ids, one singleton
// cluster per transcript at construction. It is safe for concurrent
// Union/Update calls from many worker goroutines; Clusters is meant to be
// called once quantification has finished and no more mutation is in
// flight.
type Forest struct {
	nodes []node
	locks [numLockShards]spinlock
}

// New builds a Forest of n singleton clusters, one per transcript id in
// [0, n).
func New(n int) *Forest {
	nodes := make([]node, n)
	for i := range nodes {
		nodes[i].parent = uint32(i)
		nodes[i].logMass = math.Float64bits(logmath.LOG_0)
		nodes[i].members = []uint32{uint32(i)}
	}
	return &Forest{nodes: nodes}
}

func (f *Forest) shardFor(id uint32) *spinlock {
	return &f.locks[shardIndex(id)]
}

func shardIndex(id uint32) uint64 {
	var buf [4]byte
	buf[0] = byte(id)
	buf[1] = byte(id >> 8)
	buf[2] = byte(id >> 16)
	buf[3] = byte(id >> 24)
	return seahash.Sum64(buf[:]) % numLockShards
}

// Find returns the current root of t's cluster, path-splitting along the
// way. It never blocks: parent pointers only ever move a node closer to
// its true root, so a racing compression is at worst redundant work, never
// an incorrect result.
func (f *Forest) Find(t uint32) uint32 {
	for {
		parent := atomic.LoadUint32(&f.nodes[t].parent)
		if parent == t {
			return t
		}
		grandparent := atomic.LoadUint32(&f.nodes[parent].parent)
		if grandparent != parent {
			atomic.CompareAndSwapUint32(&f.nodes[t].parent, parent, grandparent)
		}
		t = parent
	}
}

// Union merges the clusters containing a and b, if they are not already
// the same cluster. The two roots' shard locks are acquired in ascending
// shard-index order (the canonical order): shards are shared by many
// roots, so a single order over the shards is what keeps two concurrent
// unions from deadlocking on each other.
func (f *Forest) Union(a, b uint32) {
	for {
		ra, rb := f.Find(a), f.Find(b)
		if ra == rb {
			return
		}
		lo, hi := shardIndex(ra), shardIndex(rb)
		if lo > hi {
			lo, hi = hi, lo
		}
		lockLo, lockHi := &f.locks[lo], &f.locks[hi]
		lockLo.lock()
		if lockHi != lockLo {
			lockHi.lock()
		}

		// Roots may have changed between Find and acquiring the locks, if
		// another goroutine's union raced ahead of this one; retry from
		// scratch rather than link a stale root.
		stillRoots := atomic.LoadUint32(&f.nodes[ra].parent) == ra &&
			atomic.LoadUint32(&f.nodes[rb].parent) == rb
		if stillRoots {
			f.link(ra, rb)
		}
		if lockHi != lockLo {
			lockHi.unlock()
		}
		lockLo.unlock()
		if stillRoots {
			return
		}
	}
}

// link merges rb's cluster into ra's (or the reverse, by rank), under the
// caller's already-held root locks.
func (f *Forest) link(ra, rb uint32) {
	na, nb := &f.nodes[ra], &f.nodes[rb]
	if na.rank < nb.rank {
		ra, rb = rb, ra
		na, nb = nb, na
	}

	merged := logmath.Add(math.Float64frombits(na.logMass), math.Float64frombits(nb.logMass))
	na.logMass = math.Float64bits(merged)
	na.hitCount += nb.hitCount
	na.members = append(na.members, nb.members...)
	nb.members = nil

	atomic.StoreUint32(&nb.parent, ra)
	if na.rank == nb.rank {
		na.rank++
	}
}

// Update applies one cluster-level observation to t's cluster: hits is
// added to the cluster's hit_count, and updateMass is log-added into the
// cluster's log_mass. This is the cluster-level counterpart to
// transcript.Table's per-transcript AddLogMass — the two are accumulated
// independently and only reconciled at Project time.
func (f *Forest) Update(t uint32, hits uint64, updateMass float64) {
	for {
		root := f.Find(t)
		lock := f.shardFor(root)
		lock.lock()
		if atomic.LoadUint32(&f.nodes[root].parent) != root {
			lock.unlock()
			continue
		}
		n := &f.nodes[root]
		n.logMass = math.Float64bits(logmath.Add(math.Float64frombits(n.logMass), updateMass))
		n.hitCount += hits
		lock.unlock()
		return
	}
}

// Cluster is a snapshot of one root's aggregate state, returned by
// Clusters.
type Cluster struct {
	Members  []uint32
	LogMass  float64
	HitCount uint64
}

// Clusters returns every current root's cluster snapshot. It is meant to
// be called after all Union/Update traffic has quiesced (post-run
// projection); calling it concurrently with further mutation yields an
// inconsistent but not corrupt snapshot.
func (f *Forest) Clusters() []Cluster {
	var out []Cluster
	for id := range f.nodes {
		uid := uint32(id)
		if atomic.LoadUint32(&f.nodes[uid].parent) != uid {
			continue
		}
		n := &f.nodes[uid]
		members := make([]uint32, len(n.members))
		copy(members, n.members)
		out = append(out, Cluster{
			Members:  members,
			LogMass:  math.Float64frombits(n.logMass),
			HitCount: n.hitCount,
		})
	}
	return out
}
