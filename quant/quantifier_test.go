package quant

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/sdafish/kmerindex"
	"github.com/grailbio/sdafish/readsrc"
	"github.com/grailbio/sdafish/transcript"
)

func buildIndex(t *testing.T, k int, transcripts map[uint32]string) *kmerindex.IndexView {
	t.Helper()
	locations := make(map[kmerindex.Kmer][]kmerindex.Location)
	for tid, seq := range transcripts {
		c := kmerindex.New(k)
		c.Reset()
		for i := 0; i < len(seq); i++ {
			fwd, _, ok := c.Push(seq[i])
			if !ok {
				continue
			}
			pos := uint32(i) - uint32(k) + 1
			locations[fwd] = append(locations[fwd], kmerindex.NewLocation(tid, pos))
		}
	}
	return kmerindex.NewInMemory(k, locations)
}

func newTable(lengths map[uint32]uint32) *transcript.Table {
	n := 0
	for id := range lengths {
		if int(id)+1 > n {
			n = int(id) + 1
		}
	}
	entries := make([]*transcript.Transcript, n)
	for id, length := range lengths {
		entries[id] = &transcript.Transcript{ID: id, RefLength: length}
	}
	return transcript.NewTable(entries)
}

func writeFASTQPair(t *testing.T, dir string, pairs []struct{ id, left, right string }) (r1, r2 string) {
	t.Helper()
	var b1, b2 []byte
	for _, p := range pairs {
		b1 = append(b1, "@"+p.id+"\n"+p.left+"\n+\n"+string(make([]byte, len(p.left)))+"\n"...)
		b2 = append(b2, "@"+p.id+"\n"+p.right+"\n+\n"+string(make([]byte, len(p.right)))+"\n"...)
	}
	r1 = filepath.Join(dir, "r1.fastq")
	r2 = filepath.Join(dir, "r2.fastq")
	require.NoError(t, os.WriteFile(r1, b1, 0o644))
	require.NoError(t, os.WriteFile(r2, b2, 0o644))
	return r1, r2
}

// t0 is the same non-repetitive 40bp fixture used by mapper_test.go,
// verified to contain no repeated or self-reverse-complementary 5-mers.
const t0 = "AAGCCCAATAAACCACTCTGACTGGCCGAATAGGGATATA"

func TestRunSingleUniquePairUpdatesCounts(t *testing.T) {
	idx := buildIndex(t, 5, map[uint32]string{0: t0})
	table := newTable(map[uint32]uint32{0: uint32(len(t0))})
	q := New(idx, table)

	dir := t.TempDir()
	r1, r2 := writeFASTQPair(t, dir, []struct{ id, left, right string }{
		{"frag1", t0[0:15], t0[20:35]},
	})

	src := readsrc.Open(context.Background(), []string{r1}, []string{r2}, 64)
	require.NoError(t, q.Run(context.Background(), src, 2))

	tr := table.Get(0)
	require.Equal(t, uint64(1), tr.TotalCount())
	require.Equal(t, uint64(1), tr.UniqueCount())

	out := t.TempDir()
	require.NoError(t, WriteQuantSF(context.Background(), out, q.Table(), q.Forest(), 1))

	data, err := os.ReadFile(filepath.Join(out, "quant.sf"))
	require.NoError(t, err)
	require.Contains(t, string(data), "# SDAFish v0.01")
	require.Contains(t, string(data), "# ClusterID\tName\tLength\tFPKM\tNumReads")
}

func TestRunZeroHitsLeavesCountersUntouched(t *testing.T) {
	idx := buildIndex(t, 5, map[uint32]string{0: t0})
	table := newTable(map[uint32]uint32{0: uint32(len(t0))})
	q := New(idx, table)

	dir := t.TempDir()
	unrelated := "NNNNNNNNNNNNNNNNNNNN"
	r1, r2 := writeFASTQPair(t, dir, []struct{ id, left, right string }{
		{"frag1", unrelated, unrelated},
	})

	src := readsrc.Open(context.Background(), []string{r1}, []string{r2}, 64)
	require.NoError(t, q.Run(context.Background(), src, 1))

	require.Equal(t, uint64(0), table.Get(0).TotalCount())
	require.Equal(t, uint64(0), table.Get(0).UniqueCount())
}
