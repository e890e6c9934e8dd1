package quant

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/log"

	"github.com/grailbio/sdafish/clusterforest"
	"github.com/grailbio/sdafish/em"
	"github.com/grailbio/sdafish/kmerindex"
	"github.com/grailbio/sdafish/mapper"
	"github.com/grailbio/sdafish/readsrc"
	"github.com/grailbio/sdafish/transcript"
)

// Quantifier owns the shared state a worker pool mutates over the course
// of a run: the transcript table, the cluster forest, and the forgetting
// schedule. It has no notion of "done" beyond its source closing; Run
// blocks until every worker has drained the source.
type Quantifier struct {
	idx      *kmerindex.IndexView
	table    *transcript.Table
	forest   *clusterforest.Forest
	schedule *em.ForgettingSchedule

	mappedReads uint64 // atomic
}

// New constructs a Quantifier over the given index and transcript table,
// with a fresh singleton cluster forest and forgetting schedule.
func New(idx *kmerindex.IndexView, table *transcript.Table) *Quantifier {
	return &Quantifier{
		idx:      idx,
		table:    table,
		forest:   clusterforest.New(table.Len()),
		schedule: em.NewForgettingSchedule(),
	}
}

// Table returns the transcript table this Quantifier mutates.
func (q *Quantifier) Table() *transcript.Table { return q.table }

// Forest returns the cluster forest this Quantifier mutates.
func (q *Quantifier) Forest() *clusterforest.Forest { return q.forest }

// Run spawns workers workers (runtime.NumCPU() if workers <= 0), each
// draining source.Jobs() until it closes, mapping every read-pair and
// folding its candidates into the shared EM state. Run blocks until every
// worker has exited, then returns any scan error the source encountered.
func (q *Quantifier) Run(_ context.Context, source *readsrc.Source, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.runWorker(source.Jobs())
		}()
	}
	wg.Wait()

	if err := source.Err(); err != nil {
		return err
	}

	totalReads := source.Stats().Reads()
	mapped := atomic.LoadUint64(&q.mappedReads)
	if totalReads > 0 {
		log.Printf("Had a hit for %.2f%% of the reads", float64(mapped)/float64(totalReads)*100)
	}
	return nil
}

// runWorker is the body of one worker goroutine: its own Mapper (per-worker
// scratch state) and its own OnlineEM (so the zero-probability-read
// warning is scoped per worker) over the shared table/forest/schedule.
func (q *Quantifier) runWorker(jobs <-chan readsrc.Job) {
	m := mapper.New(q.idx, q.table)
	stepper := em.New(q.table, q.forest, q.schedule)

	for job := range jobs {
		batch := make([][]mapper.Alignment, len(job.Pairs))
		for i, p := range job.Pairs {
			aln := m.Map([]byte(p.Left), []byte(p.Right))
			if aln == nil {
				continue
			}
			// Map's return value aliases Mapper's scratch buffer and is
			// only valid until the next call; the batch must own a copy.
			batch[i] = append([]mapper.Alignment(nil), aln...)
			atomic.AddUint64(&q.mappedReads, 1)
		}
		stepper.ProcessBatch(batch)
	}
}
