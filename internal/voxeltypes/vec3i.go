// Package voxeltypes holds small value types shared across the voxel
// storage and streaming packages.
package voxeltypes

// Vec3i is an integer 3D coordinate: a block position, a voxel position,
// or a block size.
type Vec3i struct {
	X, Y, Z int
}

// Volume returns X*Y*Z.
func (v Vec3i) Volume() int64 {
	return int64(v.X) * int64(v.Y) * int64(v.Z)
}

// Add returns the componentwise sum.
func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns the componentwise difference.
func (v Vec3i) Sub(o Vec3i) Vec3i {
	return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s in every component.
func (v Vec3i) Scale(s int) Vec3i {
	return Vec3i{v.X * s, v.Y * s, v.Z * s}
}

// Shr returns v with every component right-shifted by n bits.
func (v Vec3i) Shr(n uint) Vec3i {
	return Vec3i{v.X >> n, v.Y >> n, v.Z >> n}
}

// SortMinMax returns (min, max) with each axis independently sorted, the
// way the source's Vector3i::sort_min_max does.
func SortMinMax(a, b Vec3i) (Vec3i, Vec3i) {
	min, max := a, b
	if min.X > max.X {
		min.X, max.X = max.X, min.X
	}
	if min.Y > max.Y {
		min.Y, max.Y = max.Y, min.Y
	}
	if min.Z > max.Z {
		min.Z, max.Z = max.Z, min.Z
	}
	return min, max
}

// ClampTo clamps every component of v to [lo, hi] (inclusive on both ends,
// matching Vector3i::clamp_to).
func (v Vec3i) ClampTo(lo, hi Vec3i) Vec3i {
	return Vec3i{
		X: clampAxis(v.X, lo.X, hi.X),
		Y: clampAxis(v.Y, lo.Y, hi.Y),
		Z: clampAxis(v.Z, lo.Z, hi.Z),
	}
}

func clampAxis(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
