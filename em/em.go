// Package em implements the online mini-batch Expectation-Maximization
// step: given a batch of per-read candidate alignment lists, it normalizes
// each read's alignment probabilities against the current transcript mass
// estimate (E-step), then folds each transcript's batch contribution back
// into its running log-mass (M-step), before advancing the decaying
// forgetting-mass schedule for the next batch.
package em

import (
	"math"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/grailbio/sdafish/clusterforest"
	"github.com/grailbio/sdafish/logmath"
	"github.com/grailbio/sdafish/mapper"
	"github.com/grailbio/sdafish/transcript"
)

// OnlineEM ties together the transcript table, the cluster forest, and the
// forgetting schedule that the E/M steps read and update every batch. The
// table, forest, and schedule are shared collaborators; zeroProbWarnOnce is
// not — each worker goroutine constructs its own OnlineEM over the same
// shared collaborators, so that the zero-probability-read warning fires at
// most once per worker rather than once per run or once per read.
type OnlineEM struct {
	table    *transcript.Table
	forest   *clusterforest.Forest
	schedule *ForgettingSchedule

	zeroProbWarnOnce sync.Once
}

// New constructs an OnlineEM over the given shared collaborators.
func New(table *transcript.Table, forest *clusterforest.Forest, schedule *ForgettingSchedule) *OnlineEM {
	return &OnlineEM{table: table, forest: forest, schedule: schedule}
}

// obsRef is an index into batch[read][alignment], used so the M-step can
// revisit a normalized alignment's log_prob without copying it.
type obsRef struct {
	read, alignment int
}

// ProcessBatch runs one mini-batch's E-step and M-step, then advances the
// forgetting schedule. batch is mutated in place: each alignment's LogProb
// field is filled in and normalized.
func (e *OnlineEM) ProcessBatch(batch [][]mapper.Alignment) {
	logFM := e.schedule.LogMass()

	hitsForTranscript := make(map[uint32][]obsRef)

	for ri, alnGroup := range batch {
		alnGroup = e.dropOutOfBoundsAlignments(alnGroup)
		batch[ri] = alnGroup
		if len(alnGroup) == 0 {
			continue
		}

		sumAlignProbs := logmath.LOG_0
		firstTranscriptID := alnGroup[0].TranscriptID
		transcriptUnique := true
		observed := make(map[uint32]bool, len(alnGroup))

		for ai := range alnGroup {
			a := &alnGroup[ai]
			hitsForTranscript[a.TranscriptID] = append(hitsForTranscript[a.TranscriptID], obsRef{ri, ai})

			if a.TranscriptID != firstTranscriptID {
				transcriptUnique = false
			}
			t := e.table.Get(a.TranscriptID)

			if !observed[a.TranscriptID] {
				e.table.AddTotalCount(t, 1)
				observed[a.TranscriptID] = true
			}

			refLength := t.RefLength
			if refLength == 0 {
				refLength = 1
			}
			logRefLength := math.Log(float64(refLength))
			transcriptLogMass := t.LogMass()

			if transcriptLogMass != logmath.LOG_0 {
				a.LogProb = math.Log(math.Pow(float64(a.KmerCount), 2)) + (transcriptLogMass - logRefLength)
				sumAlignProbs = logmath.Add(sumAlignProbs, a.LogProb)
			} else {
				a.LogProb = logmath.LOG_0
			}
		}

		if sumAlignProbs == logmath.LOG_0 {
			// Zero-probability fragment: none of its candidates carry any
			// mass yet. Leave its (unnormalized) alignments in
			// hitsForTranscript — the M-step below still folds them in,
			// matching the forgetting-mass bookkeeping of a read that
			// contributed nothing.
			e.zeroProbWarnOnce.Do(func() {
				log.Error.Printf("em: zero-probability fragment(s) encountered; further occurrences on this worker are not logged")
			})
			continue
		}
		for ai := range alnGroup {
			alnGroup[ai].LogProb -= sumAlignProbs
		}

		if transcriptUnique {
			t := e.table.Get(firstTranscriptID)
			if t == nil {
				continue
			}
			e.table.AddUniqueCount(t, 1)
			e.forest.Update(firstTranscriptID, 1, logFM)
		} else {
			for i := 1; i < len(alnGroup); i++ {
				e.forest.Union(firstTranscriptID, alnGroup[i].TranscriptID)
			}
			e.forest.Update(firstTranscriptID, 1, logFM)
		}
	}

	for tid, refs := range hitsForTranscript {
		t := e.table.Get(tid)
		if t == nil {
			continue
		}
		hitMass := logmath.LOG_0
		for _, r := range refs {
			hitMass = logmath.Add(hitMass, batch[r.read][r.alignment].LogProb)
		}
		updateMass := logFM + hitMass
		e.table.AddLogMass(t, updateMass)
	}

	e.schedule.Advance()
}

// dropOutOfBoundsAlignments filters out any alignment whose transcript id
// isn't present in the table: a corrupt index producing an id past the end
// of the reference. Per the error-handling design, such an alignment is
// logged and skipped rather than allowed to propagate into the cluster
// forest, whose Union/Update/Find index directly into a fixed-size slice
// and would panic on an out-of-range id. Filtering here, once, up front,
// lets every downstream step in ProcessBatch assume every surviving id is
// valid.
func (e *OnlineEM) dropOutOfBoundsAlignments(alnGroup []mapper.Alignment) []mapper.Alignment {
	kept := alnGroup[:0]
	for _, a := range alnGroup {
		if e.table.Get(a.TranscriptID) == nil {
			log.Error.Printf("em: alignment references out-of-bounds transcript id %d; skipping", a.TranscriptID)
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
