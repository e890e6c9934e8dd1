// Package kmerindex provides the rolling 2-bit k-mer codec and the
// read-only perfect-hash index view that resolves a k-mer to every
// (transcript, offset) at which it occurs in the reference transcriptome.
// Everything here is built once at startup and then shared, unmutated,
// across all mapping workers.
package kmerindex
