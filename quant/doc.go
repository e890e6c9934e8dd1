// Package quant orchestrates the worker pool that ties together the read
// mapper (package mapper), the online EM step (package em), and the
// cluster forest (package clusterforest): it pulls read-pair batches from a
// job source, maps and processes each batch per worker, and once every
// worker has drained the source, projects every cluster onto its feasible
// box and writes the quant.sf abundance table.
package quant
