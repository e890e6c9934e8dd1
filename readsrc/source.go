package readsrc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/grailbio/sdafish/encoding/fastq"
)

// progressInterval mirrors the original quantifier's per-50,000-read
// progress log (add_sizes).
const progressInterval = 50000

// Pair is one read-pair pulled from a mates1/mates2 FASTQ file pair.
type Pair struct {
	Name        string
	Left, Right string
}

// Job is a fixed-size unit of work a worker drains from a Source: one
// mini-batch's worth of read-pairs.
type Job struct {
	Pairs []Pair
}

// Stats accumulates read/base throughput counters across every file pair a
// Source reads, a supplemented feature mirroring the original's
// total_fwd/total_bwd bookkeeping.
type Stats struct {
	reads uint64 // atomic
	bases uint64 // atomic
}

// Reads returns the number of read-pairs produced so far.
func (s *Stats) Reads() uint64 { return atomic.LoadUint64(&s.reads) }

// Bases returns the number of bases (summed over both mates) produced so far.
func (s *Stats) Bases() uint64 { return atomic.LoadUint64(&s.bases) }

// Source is a bounded multi-producer/multi-consumer job queue: one producer
// goroutine per mates1/mates2 file pair, scanning read-pairs and grouping
// them into fixed-size Jobs, feeding a single shared channel that worker
// goroutines drain and compete over.
type Source struct {
	jobCh chan Job
	stats Stats
	wg    sync.WaitGroup
	errs  errors.Once
}

// Open starts scanning every (r1Paths[i], r2Paths[i]) file pair concurrently
// and returns a Source streaming batchSize-sized Jobs over a shared channel.
// Scanning happens in background goroutines; call Jobs to drain them and Err
// after the Jobs channel closes to check for a scan error.
func Open(ctx context.Context, r1Paths, r2Paths []string, batchSize int) *Source {
	s := &Source{jobCh: make(chan Job, 64)}
	for i := range r1Paths {
		s.wg.Add(1)
		go s.readPair(ctx, r1Paths[i], r2Paths[i], batchSize)
	}
	go func() {
		s.wg.Wait()
		close(s.jobCh)
	}()
	return s
}

// Jobs returns the channel workers should range over to pull batches. It
// closes once every file pair has been fully scanned.
func (s *Source) Jobs() <-chan Job { return s.jobCh }

// Stats returns the running read/base throughput counters.
func (s *Source) Stats() *Stats { return &s.stats }

// Err returns the first scan/close error encountered across every file
// pair, if any. Must be called only after Jobs' channel has closed.
func (s *Source) Err() error { return s.errs.Err() }

func (s *Source) readPair(ctx context.Context, r1Path, r2Path string, batchSize int) {
	defer s.wg.Done()

	in1, err := file.Open(ctx, r1Path)
	if err != nil {
		s.errs.Set(errors.E(err, "readsrc: opening", r1Path))
		return
	}
	in2, err := file.Open(ctx, r2Path)
	if err != nil {
		s.errs.Set(errors.E(err, "readsrc: opening", r2Path))
		in1.Close(ctx) // nolint:errcheck
		return
	}

	var (
		inr1 io.Reader = in1.Reader(ctx)
		inr2 io.Reader = in2.Reader(ctx)
	)
	if u1 := compress.NewReaderPath(inr1, in1.Name()); u1 != nil {
		inr1 = u1
	}
	if u2 := compress.NewReaderPath(inr2, in2.Name()); u2 != nil {
		inr2 = u2
	}

	sc := fastq.NewPairScanner(inr1, inr2, fastq.ID|fastq.Seq)
	var (
		r1R, r2R fastq.Read
		batch    []Pair
		nRead    uint64
	)
	for sc.Scan(&r1R, &r2R) {
		nRead++
		atomic.AddUint64(&s.stats.reads, 1)
		atomic.AddUint64(&s.stats.bases, uint64(len(r1R.Seq)+len(r2R.Seq)))

		batch = append(batch, Pair{Name: r1R.ID, Left: r1R.Seq, Right: r2R.Seq})
		if len(batch) >= batchSize {
			s.jobCh <- Job{Pairs: batch}
			batch = nil
		}
		if nRead%progressInterval == 0 {
			log.Printf("%s: processed %d read pairs", r1Path, nRead)
		}
	}
	if len(batch) > 0 {
		s.jobCh <- Job{Pairs: batch}
	}

	once := errors.Once{}
	once.Set(sc.Err())
	once.Set(in1.Close(ctx))
	once.Set(in2.Close(ctx))
	if err := once.Err(); err != nil {
		s.errs.Set(errors.E(err, "readsrc: closing", r1Path, r2Path))
	}
}
