package clusterforest

import (
	"math"

	"github.com/grailbio/sdafish/logmath"
	"github.com/grailbio/sdafish/transcript"
)

// Project splits a cluster's hit_count into per-transcript projected
// counts, keyed by transcript id, in proportion to each member's log-mass
// normalized by the logsumexp of all members' log-masses. A cluster whose
// own log-mass is LOG_0 projects to all zeros. A singleton cluster, or one
// whose unconstrained fractions already fall inside every member's
// [unique_count, total_count] box, is returned unprojected; a cluster with
// any violator is projected onto the capped simplex so the per-transcript
// counts sum back to the cluster's hit_count while respecting every
// member's box.
func Project(c Cluster, table *transcript.Table) map[uint32]float64 {
	out := make(map[uint32]float64, len(c.Members))

	if c.LogMass == logmath.LOG_0 {
		for _, id := range c.Members {
			out[id] = 0
		}
		return out
	}

	logClusterCount := math.Log(float64(c.HitCount))
	values := make([]float64, len(c.Members))
	lo := make([]float64, len(c.Members))
	hi := make([]float64, len(c.Members))
	requiresProjection := false

	logMemberMass := logmath.LOG_0
	for _, id := range c.Members {
		logMemberMass = logmath.Add(logMemberMass, table.Get(id).LogMass())
	}

	for i, id := range c.Members {
		t := table.Get(id)
		logFraction := t.LogMass() - logMemberMass
		v := math.Exp(logFraction + logClusterCount)
		values[i] = v
		lo[i] = float64(t.UniqueCount())
		hi[i] = float64(t.TotalCount())
		if v > hi[i] || v < lo[i] {
			requiresProjection = true
		}
	}

	result := values
	if len(c.Members) > 1 && requiresProjection {
		result = projectBox(values, lo, hi, float64(c.HitCount))
	}

	for i, id := range c.Members {
		out[id] = result[i]
	}
	return out
}

// projectBox projects values onto the box [lo[i], hi[i]] while preserving
// sum(result) == target: a standard capped-simplex (water-filling)
// projection. Violators are clamped to their bound and the residual mass
// is redistributed proportionally across the remaining unclamped entries,
// repeating until a pass clamps nothing new.
func projectBox(values, lo, hi []float64, target float64) []float64 {
	n := len(values)
	result := make([]float64, n)
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}
	remaining := target
	sumActive := 0.0
	for _, v := range values {
		sumActive += v
	}

	for len(active) > 0 {
		scale := 0.0
		if sumActive > 0 {
			scale = remaining / sumActive
		}
		var stillActive []int
		changed := false
		for _, i := range active {
			v := values[i] * scale
			switch {
			case v > hi[i]:
				result[i] = hi[i]
				remaining -= hi[i]
				sumActive -= values[i]
				changed = true
			case v < lo[i]:
				result[i] = lo[i]
				remaining -= lo[i]
				sumActive -= values[i]
				changed = true
			default:
				result[i] = v
				stillActive = append(stillActive, i)
			}
		}
		active = stillActive
		if !changed {
			break
		}
	}
	return result
}
