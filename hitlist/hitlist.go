// Package hitlist accumulates per-transcript k-mer votes for one read end
// and scores the best single-cluster coverage among them. It is a direct
// port of the sort-then-greedy-cluster algorithm used to score candidate
// transcripts from raw k-mer hit positions.
package hitlist

import "sort"

// clusterGap is the maximum distance between a vote's implied transcript
// position and the current cluster's anchor for the vote to be absorbed
// into that cluster rather than starting a new one.
const clusterGap = 10

// Vote is one k-mer hit's implication that the read begins at a specific
// position within a transcript.
type Vote struct {
	TranscriptPos uint32
	ReadPos       uint32
}

// HitList accumulates votes for a single (read end, transcript) pair and,
// once ComputeBestHit runs, holds the best-scoring cluster found among
// them.
type HitList struct {
	votes []Vote

	BestPos   uint32
	BestScore uint32
}

// AddVote records a forward-strand k-mer hit: the k-mer occurs at offset
// tpos in the transcript, and its first base is at readPos in the read.
func (h *HitList) AddVote(tpos, readPos uint32) {
	var transcriptPos uint32
	if readPos > tpos {
		transcriptPos = 0
	} else {
		transcriptPos = tpos - readPos
	}
	h.votes = append(h.votes, Vote{TranscriptPos: transcriptPos, ReadPos: readPos})
}

// AddVoteRC records a reverse-complement-strand k-mer hit.
func (h *HitList) AddVoteRC(tpos, readPos uint32) {
	var transcriptPos uint32
	if readPos > tpos {
		transcriptPos = 0
	} else {
		transcriptPos = tpos + readPos
	}
	h.votes = append(h.votes, Vote{TranscriptPos: transcriptPos, ReadPos: readPos})
}

// NumVotes returns the number of votes accumulated so far.
func (h *HitList) NumVotes() int { return len(h.votes) }

// Reset clears the vote list so the HitList can be reused for another
// transcript without reallocating its backing array.
func (h *HitList) Reset() {
	h.votes = h.votes[:0]
	h.BestPos = 0
	h.BestScore = 0
}

// ComputeBestHit sorts the accumulated votes by (transcript position, read
// position) and runs a single-pass greedy clustering: consecutive votes
// within clusterGap bases of the current cluster's anchor are absorbed,
// each contributing min(k, (readPos+k) - rightEdge) newly covered bases
// and advancing rightEdge to readPos+k. BestPos/BestScore end up set to
// the highest-coverage cluster found. Returns false if there are no votes.
func (h *HitList) ComputeBestHit(k uint32) bool {
	if len(h.votes) == 0 {
		return false
	}
	sort.Slice(h.votes, func(i, j int) bool {
		if h.votes[i].TranscriptPos == h.votes[j].TranscriptPos {
			return h.votes[i].ReadPos < h.votes[j].ReadPos
		}
		return h.votes[i].TranscriptPos < h.votes[j].TranscriptPos
	})

	currClust := h.votes[0].TranscriptPos
	// coverage/rightEdge/contribution are signed: (read_pos+k)-right_edge can
	// go negative when a newly absorbed vote's k-mer ends before the
	// cluster's current right edge, and the spec's min(k, ...) formula
	// relies on that signed result rather than an unsigned wraparound.
	var coverage, rightEdge int64
	var maxClusterPos uint32
	var maxClusterCoverage int64

	for _, v := range h.votes {
		if v.TranscriptPos-currClust > clusterGap {
			currClust = v.TranscriptPos
			coverage = 0
			rightEdge = 0
		}
		edge := int64(v.ReadPos) + int64(k)
		contribution := int64(k)
		if edge-rightEdge < contribution {
			contribution = edge - rightEdge
		}
		coverage += contribution
		rightEdge = edge

		if coverage > maxClusterCoverage {
			maxClusterCoverage = coverage
			maxClusterPos = currClust
		}
	}

	h.BestPos = maxClusterPos
	if maxClusterCoverage < 0 {
		maxClusterCoverage = 0
	}
	h.BestScore = uint32(maxClusterCoverage)
	return true
}
