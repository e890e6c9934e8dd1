// Package readsrc wraps one or more mates1/mates2 FASTQ file pairs in a
// bounded job queue: one producer goroutine per file pair scans read-pairs
// and distributes them as fixed-size jobs over a shared channel, while
// worker goroutines dequeue jobs and
// compete for them. The parser itself (encoding/fastq) is an external
// collaborator; this package only adds the streaming/batching contract the
// quantifier's worker pool needs on top of it.
package readsrc
