// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides the ambiguous-base lookup used by the k-mer
// codec's fast path. Trimmed from the teacher's original SIMD primitives
// library to the one table-lookup helper this tree actually calls; the
// revcomp/pack/count/fastq primitives and their amd64 assembly
// counterparts have no caller here.
package biosimd
