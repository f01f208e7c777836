// Package priority computes a task-priority value from viewer state: the
// closer a block is to the nearest viewer, and the more urgent its
// priority band, the sooner it should run. It also exposes the squared
// drop distance a task uses to decide whether it has become irrelevant.
package priority

import "math"

// Band is a coarse urgency classification, combined with distance to
// produce a totally ordered priority.
type Band int

const (
	// BandLoad is the band load-block tasks are evaluated under.
	BandLoad Band = 0
	// BandMesh is a lower-urgency band reserved for mesh tasks; every
	// BandLoad value sorts before every BandMesh value.
	BandMesh Band = 1
)

// Viewer is a single observer position the priority dependency considers
// when scoring a candidate block.
type Viewer struct {
	PositionInVoxels [3]float64
}

// Dependency holds viewer state and the squared drop distance a task
// compares its own distance against.
type Dependency struct {
	Viewers            []Viewer
	DropDistanceSquared float64
}

// Value is a totally ordered priority: lower sorts first (more urgent).
// It packs band into the high bits so it dominates distance ordering
// within the same band.
type Value int64

// Evaluate scores a block at the given LOD under band, writing the
// squared distance to the closest viewer into *outDistSq. With no
// viewers registered, the block is maximally deprioritised and reported
// as infinitely far.
func (d *Dependency) Evaluate(blockCenterInVoxels [3]float64, lod uint8, band Band, outDistSq *float64) Value {
	closest := math.Inf(1)
	for _, v := range d.Viewers {
		dx := v.PositionInVoxels[0] - blockCenterInVoxels[0]
		dy := v.PositionInVoxels[1] - blockCenterInVoxels[1]
		dz := v.PositionInVoxels[2] - blockCenterInVoxels[2]
		distSq := dx*dx + dy*dy + dz*dz
		if distSq < closest {
			closest = distSq
		}
	}
	if outDistSq != nil {
		*outDistSq = closest
	}

	// Band dominates: band 0 blocks always outrank band 1, etc. Within a
	// band, closer distance (and lower lod) sorts first.
	const maxDistanceComponent = 1<<40 - 1
	var distanceComponent int64
	if math.IsInf(closest, 1) || closest >= float64(maxDistanceComponent) {
		distanceComponent = maxDistanceComponent
	} else {
		distanceComponent = int64(closest)
		if distanceComponent < 0 {
			distanceComponent = 0
		}
	}
	return Value(int64(band)<<48 | int64(lod)<<40 | clampInt64(distanceComponent, maxDistanceComponent))
}

func clampInt64(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
