package kmerindex

import (
	"sort"
	"unsafe"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// This file implements the perfect-hash k-mer -> id map (C3's phf) and the
// CSR location table it feeds into. The map is physically sharded 256 ways
// on the low byte of farmhash(kmer); within a shard it is a vanilla
// linear-probing hash table. Each k-mer maps to a single id, since the
// quantification core only ever needs to resolve a k-mer down to one CSR
// row.

const (
	nIndexShard  = 256 // number of shards in the phf table.
	maxCollision = 64  // max linear-probe distance before giving up.

	// InvalidID is returned by Lookup when a k-mer is absent from the index.
	InvalidID = ^uint32(0)
)

var invalidKmer = Kmer(^uint64(0))

type indexEntry struct {
	kmer Kmer
	id   uint32
	_    uint32 // pad to 16 bytes so entrySize is a clean power-of-two multiple
}

var entrySize = unsafe.Sizeof(indexEntry{})

// indexShard is one 256th of the phf table: a linear-probing hash table
// backed by an anonymous, huge-page-advised memory region so that large
// transcriptomes don't thrash the TLB during the mapping hot loop.
type indexShard struct {
	nShift     uint32
	tableStart unsafe.Pointer
	tableLimit unsafe.Pointer
}

func hashKmer(k Kmer) uint64 {
	return farm.Hash64WithSeed(nil, uint64(k))
}

// buildShard constructs one shard from the (kmer -> id) pairs that hash into
// it. Thread-compatible; call once per shard during index load.
func buildShard(shard int, input map[Kmer]uint32) indexShard {
	const (
		hugePageSize = 2 << 20
		loadFactor   = 4
	)
	minSize := int(float64(len(input)+1) * loadFactor)
	size := 1
	shift := 0
	for size < minSize {
		size *= 2
		shift++
	}
	sizeShift := 64 - shift
	if sizeShift > 64 {
		sizeShift = 64
	}

	tableData, err := unix.Mmap(-1, 0, size*int(entrySize)+hugePageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Madvise(tableData, unix.MADV_HUGEPAGE); err != nil {
		// Not fatal: huge pages are a performance hint, not a correctness
		// requirement.
		log.Printf("kmerindex: madvise(MADV_HUGEPAGE) failed: %v", err)
	}
	tableStart := ((uintptr(unsafe.Pointer(&tableData[0])) - 1) / hugePageSize + 1) * hugePageSize
	tableLimit := tableStart + uintptr(size)*entrySize

	for i := 0; i < size; i++ {
		ent := (*indexEntry)(unsafe.Pointer(tableStart + entrySize*uintptr(i)))
		ent.kmer = invalidKmer
	}

	// Deterministic insertion order keeps shard layout reproducible across
	// runs for a given input.
	kmers := make([]Kmer, 0, len(input))
	for k := range input {
		kmers = append(kmers, k)
	}
	sort.Slice(kmers, func(i, j int) bool { return kmers[i] < kmers[j] })

	for _, kmer := range kmers {
		id := input[kmer]
		h := hashKmer(kmer)
		if h&(nIndexShard-1) != uint64(shard) {
			panic("kmer hashed to wrong shard")
		}
		entPtr := tableStart + entrySize*uintptr(h>>uint(sizeShift))
		var ent *indexEntry
		for iter := 0; ; iter++ {
			ent = (*indexEntry)(unsafe.Pointer(entPtr))
			if ent.kmer == invalidKmer {
				break
			}
			if iter > maxCollision {
				log.Panicf("kmerindex: shard %d overfull (size=%d)", shard, size)
			}
			entPtr += entrySize
			if entPtr >= tableLimit {
				entPtr = tableStart
			}
		}
		ent.kmer = kmer
		ent.id = id
	}

	return indexShard{
		nShift:     uint32(sizeShift),
		tableStart: unsafe.Pointer(tableStart),
		tableLimit: unsafe.Pointer(tableLimit),
	}
}

func (s *indexShard) lookup(kmer Kmer, h uint64) uint32 {
	if s.tableStart == nil {
		return InvalidID
	}
	tableStart := uintptr(s.tableStart)
	tableLimit := uintptr(s.tableLimit)
	entPtr := tableStart + entrySize*uintptr(h>>s.nShift)
	for iter := 0; iter <= maxCollision; iter++ {
		ent := (*indexEntry)(unsafe.Pointer(entPtr))
		if ent.kmer == kmer {
			return ent.id
		}
		if ent.kmer == invalidKmer {
			return InvalidID
		}
		entPtr += entrySize
		if entPtr >= tableLimit {
			entPtr = tableStart
		}
	}
	return InvalidID
}

// IndexView is the read-only, shared-by-reference view of the prebuilt
// k-mer perfect hash plus the CSR location table. It is safe for concurrent
// use by any number of workers once built: nothing about it is mutated
// after Load returns.
type IndexView struct {
	k        int
	shards   [nIndexShard]indexShard
	offsets  []uint64
	kmerLocs []Location
}

// K returns the k-mer length this index was built for.
func (v *IndexView) K() int { return v.k }

// NumKmers returns N, the number of distinct k-mers indexed (offsets has
// N+1 entries).
func (v *IndexView) NumKmers() int {
	if len(v.offsets) == 0 {
		return 0
	}
	return len(v.offsets) - 1
}

// Lookup resolves kmer to its perfect-hash id, or InvalidID if the k-mer was
// never observed while building the index.
func (v *IndexView) Lookup(kmer Kmer) uint32 {
	h := hashKmer(kmer)
	return v.shards[h&(nIndexShard-1)].lookup(kmer, h)
}

// Locate returns the slice of kmerLocs holding every (transcript, offset)
// occurrence of kmer. The returned slice aliases the index's backing array
// and must not be mutated. An absent k-mer yields a nil, zero-length slice.
func (v *IndexView) Locate(kmer Kmer) []Location {
	id := v.Lookup(kmer)
	if id == InvalidID || int(id)+1 >= len(v.offsets) {
		return nil
	}
	begin, end := v.offsets[id], v.offsets[id+1]
	return v.kmerLocs[begin:end]
}
