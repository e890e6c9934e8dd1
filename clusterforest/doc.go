// Package clusterforest implements the concurrent disjoint-set forest over
// transcripts: one singleton cluster per transcript at start, merged
// whenever a read maps ambiguously across more than one transcript. Each
// root tracks the log-mass and hit count credited to its cluster as a
// whole (distinct from the per-transcript log-mass kept in package
// transcript), and the post-run simplex projection that turns a cluster's
// aggregate mass back into per-transcript projected counts.
package clusterforest
