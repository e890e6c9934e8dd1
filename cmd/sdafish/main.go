// sdafish is a streaming k-mer-based transcript-abundance quantifier.
//
// Usage:
//
//	sdafish quant -i <index dir> -l <libtype> -1 <mates1,...> -2 <mates2,...> -o <output dir>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/sdafish/kmerindex"
	"github.com/grailbio/sdafish/quant"
	"github.com/grailbio/sdafish/readsrc"
	"github.com/grailbio/sdafish/transcript"
)

const version = "SDAFish v0.01"

// batchSize is the number of read pairs handed to a worker per job, the
// same granularity em.ProcessBatch calls a "mini-batch".
const batchSize = 1000

type quantFlags struct {
	index         string
	libType       string
	mates1        string
	mates2        string
	unmatedReads  string
	threads       int
	output        string
	help, version bool
}

func registerQuantFlags(fs *flag.FlagSet, f *quantFlags) {
	for _, name := range []string{"index", "i"} {
		fs.StringVar(&f.index, name, "", "Path to the index directory (transcriptome.sfi, transcriptome.tlut, fullLookup.kmap)")
	}
	for _, name := range []string{"libtype", "l"} {
		fs.StringVar(&f.libType, name, "", "Library type string (e.g. IU); accepted for CLI compatibility")
	}
	for _, name := range []string{"mates1", "1"} {
		fs.StringVar(&f.mates1, name, "", "Comma-separated list of mate-1 FASTQ files")
	}
	for _, name := range []string{"mates2", "2"} {
		fs.StringVar(&f.mates2, name, "", "Comma-separated list of mate-2 FASTQ files")
	}
	for _, name := range []string{"unmated_reads", "r"} {
		fs.StringVar(&f.unmatedReads, name, "", "Comma-separated list of unmated-read FASTQ files (not supported; rejected before worker startup)")
	}
	for _, name := range []string{"threads", "p"} {
		fs.IntVar(&f.threads, name, 0, "Number of worker threads (default = hardware concurrency)")
	}
	for _, name := range []string{"output", "o"} {
		fs.StringVar(&f.output, name, "", "Output directory for quant.sf")
	}
	for _, name := range []string{"help", "h"} {
		fs.BoolVar(&f.help, name, false, "Print usage and exit")
	}
	for _, name := range []string{"version", "v"} {
		fs.BoolVar(&f.version, name, false, "Print version and exit")
	}
}

func quantUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s quant -i <index> -l <libtype> -1 <mates1,...> -2 <mates2,...> -o <output>\n", os.Args[0])
	fs.PrintDefaults()
}

// validateQuantFlags checks the config-error conditions spec.md §7 assigns
// exit 1: missing required paths, a missing library type, mismatched mate
// lists, and the unsupported single-end (-r/--unmated_reads) path. The
// library type is only checked for being non-empty; its value is not
// parsed or validated. It does not touch the
// filesystem — index and input existence are checked at load time.
func validateQuantFlags(f *quantFlags) error {
	if f.index == "" {
		return errors.E("config: --index is required")
	}
	if f.libType == "" {
		return errors.E("config: --libtype is required")
	}
	if f.mates1 == "" || f.mates2 == "" {
		return errors.E("config: both --mates1 and --mates2 are required")
	}
	if f.unmatedReads != "" {
		return errors.E("config: --unmated_reads is not supported; this quantifier only processes paired reads")
	}
	r1 := strings.Split(f.mates1, ",")
	r2 := strings.Split(f.mates2, ",")
	if len(r1) != len(r2) {
		return errors.E("config: --mates1 and --mates2 must list the same number of files")
	}
	if f.output == "" {
		return errors.E("config: --output is required")
	}
	return nil
}

func runQuant(ctx context.Context, f *quantFlags) error {
	sfiPath := filepath.Join(f.index, "transcriptome.sfi")
	kmapPath := filepath.Join(f.index, "fullLookup.kmap")
	tlutPath := filepath.Join(f.index, "transcriptome.tlut")

	idx, err := kmerindex.Load(ctx, sfiPath, kmapPath)
	if err != nil {
		return errors.E(err, "loading k-mer index")
	}
	table, err := transcript.LoadTable(ctx, tlutPath)
	if err != nil {
		return errors.E(err, "loading transcript length table")
	}

	if err := os.MkdirAll(f.output, 0o755); err != nil {
		return errors.E(err, "creating output directory", f.output)
	}

	workers := f.threads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	r1Paths := strings.Split(f.mates1, ",")
	r2Paths := strings.Split(f.mates2, ",")
	src := readsrc.Open(ctx, r1Paths, r2Paths, batchSize)

	q := quant.New(idx, table)
	if err := q.Run(ctx, src, workers); err != nil {
		return errors.E(err, "running quantification")
	}

	totalReads := src.Stats().Reads()
	if err := quant.WriteQuantSF(ctx, f.output, q.Table(), q.Forest(), totalReads); err != nil {
		return errors.E(err, "writing quant.sf")
	}
	log.Printf("Wrote %s", filepath.Join(f.output, "quant.sf"))
	return nil
}

func main() {
	cleanup := grail.Init()
	defer cleanup()

	if len(os.Args) < 2 || os.Args[1] != "quant" {
		fmt.Fprintf(os.Stderr, "Usage: %s quant [flags]\n", os.Args[0])
		os.Exit(1)
	}

	fs := flag.NewFlagSet("quant", flag.ExitOnError)
	f := &quantFlags{}
	registerQuantFlags(fs, f)
	fs.Usage = func() { quantUsage(fs) }
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	// --help/--version exit 0 here, unlike the original C++'s
	// boost::program_options handling (which exits 1 on --help too).
	if f.help {
		quantUsage(fs)
		os.Exit(0)
	}
	if f.version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateQuantFlags(f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := vcontext.Background()
	if err := runQuant(ctx, f); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
}
