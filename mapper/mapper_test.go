package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/sdafish/kmerindex"
	"github.com/grailbio/sdafish/transcript"
)

// buildIndex indexes every forward k-mer of each transcript sequence,
// mirroring how a real .sfi/.kmap pair only ever records forward-strand
// locations; read ends are expected to query both the forward and
// reverse-complement codes against it.
func buildIndex(k int, transcripts map[uint32]string) *kmerindex.IndexView {
	locations := make(map[kmerindex.Kmer][]kmerindex.Location)
	for tid, seq := range transcripts {
		c := kmerindex.New(k)
		c.Reset()
		for i := 0; i < len(seq); i++ {
			fwd, _, ok := c.Push(seq[i])
			if !ok {
				continue
			}
			pos := uint32(i) - uint32(k) + 1
			locations[fwd] = append(locations[fwd], kmerindex.NewLocation(tid, pos))
		}
	}
	return kmerindex.NewInMemory(k, locations)
}

func newTable(lengths map[uint32]uint32) *transcript.Table {
	ids := make([]uint32, 0, len(lengths))
	for id := range lengths {
		ids = append(ids, id)
	}
	entries := make([]*transcript.Transcript, len(lengths))
	for id, length := range lengths {
		entries[id] = &transcript.Transcript{ID: id, RefLength: length}
	}
	return transcript.NewTable(entries)
}

// t0 has no repeated or self-reverse-complementary 5-mers, so every k-mer in
// a substring of it maps to exactly one location.
const t0 = "AAGCCCAATAAACCACTCTGACTGGCCGAATAGGGATATA"

func TestMapSingleUniqueCandidate(t *testing.T) {
	const k = 5
	idx := buildIndex(k, map[uint32]string{0: t0})
	table := newTable(map[uint32]uint32{0: uint32(len(t0))})
	m := New(idx, table)

	left := []byte(t0[0:15])
	right := []byte(t0[20:35])

	aligns := m.Map(left, right)
	require.Len(t, aligns, 1)
	require.Equal(t, uint32(0), aligns[0].TranscriptID)
	require.Equal(t, uint32(len(left)+len(right)), aligns[0].KmerCount)

	// A single candidate gets the read's whole credit of 1 as shared_count.
	tr := table.Get(0)
	require.InDelta(t, 1.0, tr.SharedCount(), 1e-9)
}

func TestMapRejectsBelowCoverageCutoff(t *testing.T) {
	const k = 5
	idx := buildIndex(k, map[uint32]string{0: t0})
	table := newTable(map[uint32]uint32{0: uint32(len(t0))})
	m := New(idx, table)

	left := []byte(t0[0:15])
	// A right mate with only a short run of real sequence, padded with an
	// ambiguous base run that can never complete a k-mer, so its best-hit
	// coverage falls well short of the 80% cutoff for a 15-base end.
	right := []byte(t0[20:25] + "NNNNNNNNNN")

	aligns := m.Map(left, right)
	require.Nil(t, aligns)
}

func TestMapAmbiguityGateDropsAllCandidates(t *testing.T) {
	const k = 5
	transcripts := make(map[uint32]string, maxCandidates+1)
	for i := uint32(0); i <= maxCandidates; i++ {
		transcripts[i] = t0
	}
	idx := buildIndex(k, transcripts)
	lengths := make(map[uint32]uint32, len(transcripts))
	for id := range transcripts {
		lengths[id] = uint32(len(t0))
	}
	table := newTable(lengths)
	m := New(idx, table)

	left := []byte(t0[0:15])
	right := []byte(t0[20:35])

	aligns := m.Map(left, right)
	require.Nil(t, aligns)
}

func TestMapReusesScratchBuffersAcrossCalls(t *testing.T) {
	const k = 5
	idx := buildIndex(k, map[uint32]string{0: t0})
	table := newTable(map[uint32]uint32{0: uint32(len(t0))})
	m := New(idx, table)

	left := []byte(t0[0:15])
	right := []byte(t0[20:35])

	first := m.Map(left, right)
	require.Len(t, first, 1)
	firstScore := first[0].KmerCount

	// A second, identical call must see the same per-read result: stale
	// votes or hit lists left over from the first call would otherwise
	// inflate the second call's coverage score.
	second := m.Map(left, right)
	require.Len(t, second, 1)
	require.Equal(t, firstScore, second[0].KmerCount)

	// shared_count accumulates one unit of credit from each of the two reads.
	tr := table.Get(0)
	require.InDelta(t, 2.0, tr.SharedCount(), 1e-9)
}
