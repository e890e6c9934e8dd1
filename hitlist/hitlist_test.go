package hitlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeBestHitEmpty(t *testing.T) {
	h := &HitList{}
	require.False(t, h.ComputeBestHit(20))
}

// TestComputeBestHitSingleCluster simulates k-mer hits walking forward one
// base at a time within a single clusterGap-sized window: transcript
// position and read position both advance by 1 each vote, so only the
// first vote contributes a full k-length block and every subsequent vote
// contributes exactly 1 newly covered base.
func TestComputeBestHitSingleCluster(t *testing.T) {
	const k = 20
	h := &HitList{}
	for i := uint32(0); i < 8; i++ {
		h.AddVote(100+i, i)
	}
	require.True(t, h.ComputeBestHit(k))
	require.Equal(t, uint32(100), h.BestPos)
	require.Equal(t, uint32(k+7), h.BestScore)
}

// TestComputeBestHitPicksLargerCluster puts a small 2-vote cluster near
// transcript_pos=0 and a larger 10-vote cluster near transcript_pos=1000
// (well outside clusterGap of the first), and checks the larger cluster's
// higher coverage wins.
func TestComputeBestHitPicksLargerCluster(t *testing.T) {
	const k = 20
	h := &HitList{}
	h.AddVote(0, 0)
	h.AddVote(1, 1)
	for i := uint32(0); i < 10; i++ {
		h.AddVote(1000+i, i)
	}
	require.True(t, h.ComputeBestHit(k))
	require.Equal(t, uint32(1000), h.BestPos)
	require.Equal(t, uint32(k+9), h.BestScore)
}

// TestComputeBestHitOverlappingVoteContributesNoNegativeCoverage checks
// that a vote whose k-mer ends before the cluster's current right edge
// (read_pos+k < right_edge) is handled via signed arithmetic: its
// contribution goes negative and reduces coverage, rather than wrapping
// around to a huge unsigned value.
func TestComputeBestHitOverlappingVoteContributesNoNegativeCoverage(t *testing.T) {
	const k = 20
	h := &HitList{}
	h.AddVote(150, 50) // implied pos 100; right_edge becomes 50+20=70, coverage=20
	h.AddVote(101, 0)  // implied pos 101, same cluster; read_pos+k=20, 20-70=-50
	require.True(t, h.ComputeBestHit(k))
	// coverage after the second vote is 20 + (-50) = -30, which never exceeds
	// the first vote's running coverage of 20, so the best score stays 20.
	require.Equal(t, uint32(20), h.BestScore)
}

func TestAddVoteRCImpliedPosition(t *testing.T) {
	h := &HitList{}
	h.AddVoteRC(50, 10)
	require.Equal(t, uint32(60), h.votes[0].TranscriptPos)
	h.Reset()
	h.AddVoteRC(5, 10)
	require.Equal(t, uint32(0), h.votes[0].TranscriptPos)
}

func TestResetClearsState(t *testing.T) {
	h := &HitList{}
	h.AddVote(10, 0)
	require.True(t, h.ComputeBestHit(20))
	h.Reset()
	require.Equal(t, 0, h.NumVotes())
	require.Equal(t, uint32(0), h.BestPos)
	require.Equal(t, uint32(0), h.BestScore)
}
