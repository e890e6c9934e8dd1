package kmerindex

import "sort"

// NewInMemory assembles an IndexView directly from a kmer->locations map,
// without going through the on-disk .sfi/.kmap format. It exists for tests
// and for any future in-process index builder; production quantification
// runs load a prebuilt index from disk via Load.
func NewInMemory(k int, locations map[Kmer][]Location) *IndexView {
	kmers := make([]Kmer, 0, len(locations))
	for kmer := range locations {
		kmers = append(kmers, kmer)
	}
	sort.Slice(kmers, func(i, j int) bool { return kmers[i] < kmers[j] })

	byShard := [nIndexShard]map[Kmer]uint32{}
	for shard := range byShard {
		byShard[shard] = make(map[Kmer]uint32)
	}

	offsets := make([]uint64, 0, len(kmers)+1)
	var kmerLocs []Location
	offsets = append(offsets, 0)
	for id, kmer := range kmers {
		locs := locations[kmer]
		kmerLocs = append(kmerLocs, locs...)
		offsets = append(offsets, uint64(len(kmerLocs)))

		h := hashKmer(kmer)
		byShard[h&(nIndexShard-1)][kmer] = uint32(id)
	}

	view := &IndexView{k: k, offsets: offsets, kmerLocs: kmerLocs}
	for shard := 0; shard < nIndexShard; shard++ {
		view.shards[shard] = buildShard(shard, byShard[shard])
	}
	return view
}
