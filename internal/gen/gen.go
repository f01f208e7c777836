// Package gen is a deterministic procedural streamdep.Generator: it fills
// a freshly allocated block's TYPE channel from a column-height function
// and its SDF channel from the signed distance to that height, using the
// same splitmix64-style hashing the teacher's 2D worldgen uses for biome
// and ore placement.
//
// Grounded on internal/sim/world/chunkstore_generate.go (cluster
// precedence: rare ore > common ore > biome terrain > sprinkle) and
// chunkstore_math.go / logic/mathx (hash2/hash3/mix64/inCluster),
// generalized from the teacher's fixed Y=0 plane to a full 3D height
// field and SDF channel.
package gen

import (
	"log"

	"voxelcraft.ai/voxelblock/internal/priority"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/volumeregistry"
)

// BlockType names a material, mirroring the teacher's gen.Air/Dirt/Stone
// catalog entries but as small integers suitable for the TYPE channel.
type BlockType uint64

const (
	Air BlockType = iota
	Dirt
	Stone
	Gravel
	Sand
	Log
	CoalOre
	CopperOre
	IronOre
	CrystalOre
)

// Config tunes the generator. Zero-value Config is usable: it falls back
// to sane defaults in New.
type Config struct {
	Seed                         int64
	SeaLevel                     int
	HeightAmplitude               float64
	OreClusterProbScalePermille  int
	TerrainClusterProbScalePermille int
}

func (c Config) withDefaults() Config {
	if c.HeightAmplitude == 0 {
		c.HeightAmplitude = 24
	}
	if c.OreClusterProbScalePermille == 0 {
		c.OreClusterProbScalePermille = 1000
	}
	if c.TerrainClusterProbScalePermille == 0 {
		c.TerrainClusterProbScalePermille = 1000
	}
	return c
}

// Generator is the concrete streamdep.Generator backing create_block_task
// on a load miss.
type Generator struct {
	cfg Config
	log *log.Logger
}

// New constructs a Generator. logger may be nil.
func New(cfg Config, logger *log.Logger) *Generator {
	return &Generator{cfg: cfg.withDefaults(), log: logger}
}

// CreateBlockTask implements streamdep.Generator.
func (g *Generator) CreateBlockTask(params streamdep.BlockTaskParams) streamdep.Task {
	return &Task{gen: g, params: params}
}

// Task fills params.Voxels deterministically, then (once scheduled by the
// task runtime) delivers the result through the owning volume's
// registered callback, mirroring loadtask.Task's lifecycle.
type Task struct {
	gen    *Generator
	params streamdep.BlockTaskParams

	registry *volumeregistry.Registry
	priorityDep *priority.Dependency

	hasRun bool
	tooFar bool
}

// WithRegistry attaches the registry and priority dependency a daemon
// wires a generator task through; loadtask constructs these directly, but
// gen.Task is also reachable standalone (tests, tools), so they're set
// explicitly rather than threaded through streamdep.BlockTaskParams.
// Returns the same task as a streamdep.Task so callers that only hold the
// narrow interface (loadtask's delegation path) can still wire it.
func (t *Task) WithRegistry(reg *volumeregistry.Registry, priorityDep *priority.Dependency) streamdep.Task {
	t.registry = reg
	t.priorityDep = priorityDep
	return t
}

func (t *Task) blockCenterInVoxels() [3]float64 {
	size := t.params.BlockSize
	half := float64(size) / 2
	shift := uint(t.params.LodIndex)
	scale := float64(uint64(1) << shift)
	return [3]float64{
		(float64(t.params.BlockPos[0])*float64(size) + half) * scale,
		(float64(t.params.BlockPos[1])*float64(size) + half) * scale,
		(float64(t.params.BlockPos[2])*float64(size) + half) * scale,
	}
}

// Run deterministically fills the TYPE and SDF channels of the block at
// params.BlockPos * BlockSize, accounting for LodIndex's voxel scale.
func (t *Task) Run() {
	buf := t.params.Voxels
	size := t.params.BlockSize
	lodScale := 1 << t.params.LodIndex
	originX := t.params.BlockPos[0] * size * lodScale
	originY := t.params.BlockPos[1] * size * lodScale
	originZ := t.params.BlockPos[2] * size * lodScale

	for z := 0; z < size; z++ {
		wz := originZ + z*lodScale
		for x := 0; x < size; x++ {
			wx := originX + x*lodScale
			height := t.columnHeight(wx, wz)
			for y := 0; y < size; y++ {
				wy := originY + y*lodScale

				material := t.materialAt(wx, wy, wz, height)
				_ = buf.SetVoxel(uint64(material), x, y, z, 0)

				sdf := float64(wy-height) / t.gen.cfg.HeightAmplitude
				_ = buf.SetVoxelF(clampSDF(sdf), x, y, z, 1)
			}
		}
	}
	t.hasRun = true
}

func clampSDF(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func (t *Task) columnHeight(x, z int) int {
	h := hash2(t.gen.cfg.Seed, x, z)
	noise := float64(h%2001)/1000 - 1 // in [-1, 1]
	return t.gen.cfg.SeaLevel + int(noise*t.gen.cfg.HeightAmplitude)
}

func (t *Task) materialAt(x, y, z, height int) BlockType {
	if y > height {
		return Air
	}
	seed := t.gen.cfg.Seed
	switch {
	case inCluster3(seed+101, x, y, z, 24, 2, scalePermille(200, t.gen.cfg.OreClusterProbScalePermille)):
		return CrystalOre
	case inCluster3(seed+102, x, y, z, 16, 3, scalePermille(450, t.gen.cfg.OreClusterProbScalePermille)):
		return IronOre
	case inCluster3(seed+103, x, y, z, 16, 3, scalePermille(450, t.gen.cfg.OreClusterProbScalePermille)):
		return CopperOre
	case inCluster3(seed+104, x, y, z, 8, 4, scalePermille(650, t.gen.cfg.OreClusterProbScalePermille)):
		return CoalOre
	}
	switch {
	case y == height:
		return Dirt
	case y > height-4:
		return Gravel
	default:
		return Stone
	}
}

// GetPriority delegates to the same distance/band scoring loadtask uses.
func (t *Task) GetPriority() int64 {
	if t.priorityDep == nil {
		return 0
	}
	var distSq float64
	v := t.priorityDep.Evaluate(t.blockCenterInVoxels(), t.params.LodIndex, priority.BandLoad, &distSq)
	t.tooFar = distSq > t.priorityDep.DropDistanceSquared
	return int64(v)
}

// IsCancelled reports whether this task's result should be discarded.
func (t *Task) IsCancelled() bool {
	if t.params.Dependency != nil && !t.params.Dependency.IsValid() {
		return true
	}
	return t.tooFar
}

// ApplyResult delivers the generated block through the owning volume's
// registered callback.
func (t *Task) ApplyResult() {
	if !t.hasRun || t.registry == nil {
		return
	}
	volID := volumeregistry.VolumeID(t.params.VolumeID)
	if !t.registry.IsVolumeValid(volID) {
		return
	}
	callbacks, ok := t.registry.GetVolumeCallbacks(volID)
	if !ok || callbacks.DataOutputCallback == nil {
		return
	}
	callbacks.DataOutputCallback(callbacks.UserData, volumeregistry.BlockDataOutput{
		Voxels:      t.params.Voxels,
		Position:    t.params.BlockPos,
		Lod:         t.params.LodIndex,
		InitialLoad: true,
		Type:        volumeregistry.TypeGenerated,
	})
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func floorDiv(a, b int) int {
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func scalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// inCluster3 is chunkstore_math.go's inCluster generalized to 3D: it
// scans the 27 neighbouring grid cells (instead of 9) for a
// deterministically placed cluster center within radius.
func inCluster3(seed int64, x, y, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx, gy, gz := floorDiv(x, grid), floorDiv(y, grid), floorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cgx, cgy, cgz := gx+dx, gy+dy, gz+dz
				h := hash3(seed, cgx, cgy, cgz)
				if h%1000 >= probPermille {
					continue
				}

				ox := int((h >> 10) % uint64(grid))
				oy := int((h >> 20) % uint64(grid))
				oz := int((h >> 30) % uint64(grid))
				cx, cy, cz := cgx*grid+ox, cgy*grid+oy, cgz*grid+oz

				ddx, ddy, ddz := x-cx, y-cy, z-cz
				if ddx*ddx+ddy*ddy+ddz*ddz <= r2 {
					return true
				}
			}
		}
	}
	return false
}
