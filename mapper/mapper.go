// Package mapper turns a single read-pair into a list of candidate
// transcript alignments: it scans both ends base-by-base through a k-mer
// codec, accumulates per-transcript hit lists from the index, and keeps
// only transcripts whose coverage on both ends clears the 80%-of-read-
// length cutoff. It is a direct port of the candidate-generation inner
// loop that used to live alongside the online EM step, split out here
// because it is entirely about turning bytes into alignments — nothing
// about it touches the running abundance estimate.
package mapper

import (
	"github.com/grailbio/sdafish/hitlist"
	"github.com/grailbio/sdafish/kmerindex"
	"github.com/grailbio/sdafish/logmath"
	"github.com/grailbio/sdafish/transcript"
)

// maxCandidates bounds per-read memory: a read-pair matching more
// transcripts than this is almost certainly a low-complexity or repetitive
// sequence rather than a genuine multi-mapper, so all of its candidates are
// discarded rather than kept.
const maxCandidates = 100

// coverageFraction is the fraction of a read end's length its best-hit
// coverage must reach for a transcript to be considered a candidate.
const coverageFraction = 0.80

// Alignment is one candidate mapping of a read-pair to a transcript.
// LogProb is left at logmath.LOG_0; the E-step fills it in.
type Alignment struct {
	TranscriptID uint32
	KmerCount    uint32
	LogProb      float64
}

// Mapper holds the per-worker scratch state (codecs, hit-list maps, a
// HitList free-list) reused across reads. A Mapper is not safe for
// concurrent use; each worker goroutine owns one.
type Mapper struct {
	idx   *kmerindex.IndexView
	table *transcript.Table

	leftCodec  *kmerindex.Codec
	rightCodec *kmerindex.Codec

	leftHits  map[uint32]*hitlist.HitList
	rightHits map[uint32]*hitlist.HitList
	pool      []*hitlist.HitList

	alignments []Alignment
}

// New constructs a Mapper over the given index and transcript table. Both
// are shared, read-mostly collaborators; many Mappers may wrap the same
// ones concurrently.
func New(idx *kmerindex.IndexView, table *transcript.Table) *Mapper {
	return &Mapper{
		idx:        idx,
		table:      table,
		leftCodec:  kmerindex.New(idx.K()),
		rightCodec: kmerindex.New(idx.K()),
		leftHits:   make(map[uint32]*hitlist.HitList),
		rightHits:  make(map[uint32]*hitlist.HitList),
	}
}

// Map maps one read-pair and returns its candidate alignments, or nil if
// the pair maps nowhere or triggers the ambiguity gate. The returned slice
// aliases Mapper's internal scratch buffer and is only valid until the next
// call to Map.
func (m *Mapper) Map(left, right []byte) []Alignment {
	m.reset()

	m.scanEnd(left, m.leftCodec, m.leftHits)
	m.scanEnd(right, m.rightCodec, m.rightHits)

	k := uint32(m.idx.K())
	cutoffLeft := uint32(coverageFraction * float64(len(left)))
	cutoffRight := uint32(coverageFraction * float64(len(right)))

	for _, h := range m.leftHits {
		h.ComputeBestHit(k)
	}

	var totalScore uint32
	for tid, rh := range m.rightHits {
		lh, ok := m.leftHits[tid]
		if !ok || lh.BestScore < cutoffLeft {
			continue
		}
		rh.ComputeBestHit(k)
		if rh.BestScore < cutoffRight {
			continue
		}
		score := lh.BestScore + rh.BestScore
		m.alignments = append(m.alignments, Alignment{
			TranscriptID: tid,
			KmerCount:    score,
			LogProb:      logmath.LOG_0,
		})
		totalScore += score
		if len(m.alignments) > maxCandidates {
			m.alignments = m.alignments[:0]
			return nil
		}
	}
	if len(m.alignments) == 0 {
		return nil
	}

	m.creditSharedCount(totalScore)
	return m.alignments
}

// creditSharedCount distributes each candidate's coverage score
// proportionally across the read-pair's total score into every candidate
// transcript's shared_count, so each read contributes a total credit of 1.
// A read with a single candidate credits it exactly 1 (invTotal * score ==
// 1); an ambiguous read splits that credit across its candidates.
func (m *Mapper) creditSharedCount(totalScore uint32) {
	if totalScore == 0 {
		return
	}
	invTotal := 1.0 / float64(totalScore)
	for _, a := range m.alignments {
		if t := m.table.Get(a.TranscriptID); t != nil {
			m.table.AddSharedCount(t, float64(a.KmerCount)*invTotal)
		}
	}
}

// scanEnd walks seq base by base, and for every position producing a
// complete k-mer, records a vote into hits[transcript] for every location
// the forward code and the reverse-complement code resolve to in the
// index.
func (m *Mapper) scanEnd(seq []byte, codec *kmerindex.Codec, hits map[uint32]*hitlist.HitList) {
	codec.Reset()
	k := uint32(codec.K())
	clean := !kmerindex.HasAmbiguousBase(seq)

	for i := 0; i < len(seq); i++ {
		var fwd, rev kmerindex.Kmer
		var ok bool
		if clean {
			fwd, rev, ok = codec.PushClean(seq[i])
		} else {
			fwd, rev, ok = codec.Push(seq[i])
		}
		if !ok {
			continue
		}
		readPos := uint32(i) - k + 1

		for _, loc := range m.idx.Locate(fwd) {
			m.hitListFor(hits, loc.TranscriptID()).AddVote(loc.Offset(), readPos)
		}
		for _, loc := range m.idx.Locate(rev) {
			m.hitListFor(hits, loc.TranscriptID()).AddVoteRC(loc.Offset(), readPos)
		}
	}
}

func (m *Mapper) hitListFor(hits map[uint32]*hitlist.HitList, transcriptID uint32) *hitlist.HitList {
	if h, ok := hits[transcriptID]; ok {
		return h
	}
	h := m.takeHitList()
	hits[transcriptID] = h
	return h
}

func (m *Mapper) takeHitList() *hitlist.HitList {
	if n := len(m.pool); n > 0 {
		h := m.pool[n-1]
		m.pool = m.pool[:n-1]
		return h
	}
	return &hitlist.HitList{}
}

// reset clears per-read scratch state, returning every HitList from the
// previous read to the free-list so its backing vote array is reused.
func (m *Mapper) reset() {
	for tid, h := range m.leftHits {
		h.Reset()
		m.pool = append(m.pool, h)
		delete(m.leftHits, tid)
	}
	for tid, h := range m.rightHits {
		h.Reset()
		m.pool = append(m.pool, h)
		delete(m.rightHits, tid)
	}
	m.alignments = m.alignments[:0]
}
