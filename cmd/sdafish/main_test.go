package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseQuantFlags(t *testing.T, args ...string) *quantFlags {
	t.Helper()
	fs := flag.NewFlagSet("quant", flag.ContinueOnError)
	f := &quantFlags{}
	registerQuantFlags(fs, f)
	require.NoError(t, fs.Parse(args))
	return f
}

func TestRegisterQuantFlagsAcceptsShortAndLongForms(t *testing.T) {
	f := parseQuantFlags(t, "--index=/idx", "-l", "IU", "--mates1=a.fq", "-2", "b.fq", "-o", "/out", "-p", "4")
	require.Equal(t, "/idx", f.index)
	require.Equal(t, "IU", f.libType)
	require.Equal(t, "a.fq", f.mates1)
	require.Equal(t, "b.fq", f.mates2)
	require.Equal(t, "/out", f.output)
	require.Equal(t, 4, f.threads)
}

func TestValidateQuantFlagsRequiresIndexLibtypeMates(t *testing.T) {
	require.Error(t, validateQuantFlags(&quantFlags{}))

	f := &quantFlags{index: "/idx", libType: "IU", mates1: "a.fq", mates2: "b.fq", output: "/out"}
	require.NoError(t, validateQuantFlags(f))
}

func TestValidateQuantFlagsRejectsMismatchedMateLists(t *testing.T) {
	f := &quantFlags{index: "/idx", libType: "IU", mates1: "a.fq,c.fq", mates2: "b.fq", output: "/out"}
	require.Error(t, validateQuantFlags(f))
}

// TestValidateQuantFlagsRejectsUnmatedReads checks the single-end Non-goal:
// --unmated_reads is accepted by the flag parser for CLI compatibility but
// rejected as a config error before any worker starts.
func TestValidateQuantFlagsRejectsUnmatedReads(t *testing.T) {
	f := parseQuantFlags(t, "-i", "/idx", "-l", "IU", "-1", "a.fq", "-2", "b.fq", "-o", "/out", "-r", "u.fq")
	err := validateQuantFlags(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmated_reads")
}

func TestValidateQuantFlagsRequiresOutput(t *testing.T) {
	f := &quantFlags{index: "/idx", libType: "IU", mates1: "a.fq", mates2: "b.fq"}
	require.Error(t, validateQuantFlags(f))
}
