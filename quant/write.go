package quant

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/grailbio/sdafish/clusterforest"
	"github.com/grailbio/sdafish/logmath"
	"github.com/grailbio/sdafish/transcript"
)

const logBillion = 20.72326583694641 // math.Log(1e9), spelled out so formatting never drifts across builds

// WriteQuantSF projects every cluster in forest onto its feasible box and
// writes outputDir/quant.sf: one header pair followed by one row per
// transcript, clusterID assigned in cluster-iteration order (not derived
// from any transcript id). totalReads is the denominator of the FPKM
// formula (the run's total observed read-pair count, mapped or not).
func WriteQuantSF(ctx context.Context, outputDir string, table *transcript.Table, forest *clusterforest.Forest, totalReads uint64) error {
	out, err := file.Create(ctx, filepath.Join(outputDir, "quant.sf"))
	if err != nil {
		return errors.E(err, "quant: creating quant.sf")
	}
	w := bufio.NewWriter(out.Writer(ctx))

	werr := errors.Once{}
	writeLine := func(format string, args ...interface{}) {
		_, err := fmt.Fprintf(w, format, args...)
		werr.Set(err)
	}

	writeLine("# SDAFish v0.01\n")
	writeLine("# ClusterID\tName\tLength\tFPKM\tNumReads\n")

	logNumFragments := math.Log(float64(totalReads))

	for clusterID, c := range forest.Clusters() {
		if c.LogMass == logmath.LOG_0 {
			log.Printf("quant: cluster %d has 0 mass", clusterID)
		}
		projected := clusterforest.Project(c, table)
		for _, id := range c.Members {
			t := table.Get(id)
			if t == nil {
				continue
			}
			count := projected[id]
			fpkm := 0.0
			if count > 0 && totalReads > 0 {
				logLength := math.Log(float64(t.RefLength))
				fpkm = math.Exp(logBillion - logLength - logNumFragments)
				fpkm *= count
			}
			writeLine("%d\t%s\t%d\t%g\t%d\t%d\t%g\t%g\n",
				clusterID, t.Name, t.RefLength, fpkm,
				t.TotalCount(), t.UniqueCount(), count, t.LogMass())
		}
	}

	werr.Set(w.Flush())
	werr.Set(out.Close(ctx))
	if err := werr.Err(); err != nil {
		return errors.E(err, "quant: writing quant.sf")
	}
	return nil
}
