package kmerindex

import "github.com/grailbio/sdafish/biosimd"

// Kmer is a canonical 2-bit-per-base encoding of an oligomer of length K,
// up to 32 bases. The forward code is what the on-disk index is keyed on;
// a read end additionally queries the reverse-complement code so that a
// k-mer hit is found regardless of which strand it was sequenced from.
type Kmer uint64

var baseCode = [256]uint8{}
var baseCodeValid = [256]bool{}

func init() {
	for _, p := range []struct {
		ch   byte
		code uint8
	}{
		{'A', 0}, {'a', 0},
		{'C', 1}, {'c', 1},
		{'G', 2}, {'g', 2},
		{'T', 3}, {'t', 3},
	} {
		baseCode[p.ch] = p.code
		baseCodeValid[p.ch] = true
	}
}

// complementCode returns the 2-bit code of the complementary base for a
// forward 2-bit code (A<->T, C<->G).
func complementCode(code uint8) uint8 { return code ^ 3 }

// Codec maintains the rolling forward and reverse-complement 2-bit codes of
// a k-mer as a read is scanned base by base. It is reused across reads; call
// Reset between reads (or let the caller construct a fresh Codec per
// goroutine and Reset it, since Codec holds no per-read allocation).
type Codec struct {
	k     int
	mask  Kmer
	fwd   Kmer
	rev   Kmer
	cmlen uint32
}

// New constructs a Codec for k-mers of length k. k must be in [1, 32].
func New(k int) *Codec {
	var mask Kmer
	if k >= 32 {
		mask = Kmer(0xFFFFFFFFFFFFFFFF)
	} else {
		mask = (Kmer(1) << uint(2*k)) - 1
	}
	return &Codec{k: k, mask: mask}
}

// K returns the configured k-mer length.
func (c *Codec) K() int { return c.k }

// Reset clears accumulated rolling state. Call at the start of each read.
func (c *Codec) Reset() {
	c.fwd = 0
	c.rev = 0
	c.cmlen = 0
}

// Push feeds one more base (an ASCII byte) into the rolling codec. It
// returns the forward and reverse-complement k-mer codes ending at this
// base, and ok=true once at least k consecutive unambiguous bases have been
// seen since the last reset or ambiguous base. An ambiguous (non-ACGT) base
// resets the rolling state and returns ok=false.
func (c *Codec) Push(base byte) (fwd, rev Kmer, ok bool) {
	if !baseCodeValid[base] {
		c.Reset()
		return 0, 0, false
	}
	code := Kmer(baseCode[base])
	rc := Kmer(complementCode(baseCode[base]))

	c.fwd = ((c.fwd << 2) | code) & c.mask
	shift := uint(c.k-1) * 2
	c.rev = (c.rev >> 2) | (rc << shift)
	c.rev &= c.mask

	if c.cmlen < uint32(c.k) {
		c.cmlen++
	}
	if c.cmlen < uint32(c.k) {
		return 0, 0, false
	}
	return c.fwd, c.rev, true
}

// PushClean is Push without the ambiguous-base branch. Callers must only
// use it after confirming the whole read is free of ambiguous bases with
// HasAmbiguousBase; the behavior on an ambiguous byte is undefined.
func (c *Codec) PushClean(base byte) (fwd, rev Kmer, ok bool) {
	code := Kmer(baseCode[base])
	rc := Kmer(complementCode(baseCode[base]))

	c.fwd = ((c.fwd << 2) | code) & c.mask
	shift := uint(c.k-1) * 2
	c.rev = (c.rev >> 2) | (rc << shift)
	c.rev &= c.mask

	if c.cmlen < uint32(c.k) {
		c.cmlen++
	}
	if c.cmlen < uint32(c.k) {
		return 0, 0, false
	}
	return c.fwd, c.rev, true
}

// HasAmbiguousBase reports whether seq contains any byte other than
// uppercase A, C, G, T; lowercase bases count as ambiguous here, so such a
// read takes the Push path, which accepts them. It is used as a cheap
// pre-check so the mapper can take the branch-free PushClean path on the
// (overwhelmingly common) fully-clean read, falling back to Push otherwise.
func HasAmbiguousBase(seq []byte) bool {
	return biosimd.IsNonACGTPresent(seq)
}
