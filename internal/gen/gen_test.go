package gen

import (
	"testing"

	"voxelcraft.ai/voxelblock/internal/priority"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/volumeregistry"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

func TestRunIsDeterministic(t *testing.T) {
	g := New(Config{Seed: 42, SeaLevel: 0}, nil)
	pool := voxelpool.New()

	newTask := func() *Task {
		buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
		return g.CreateBlockTask(streamdep.BlockTaskParams{
			Voxels:    buf,
			BlockPos:  [3]int{1, 0, 2},
			BlockSize: 8,
		}).(*Task)
	}

	a := newTask()
	a.Run()
	b := newTask()
	b.Run()

	if !a.params.Voxels.Equals(b.params.Voxels) {
		t.Fatalf("expected identical seeds/positions to generate identical blocks")
	}
}

func TestGeneratedBlockHasNonAirBelowSeaLevel(t *testing.T) {
	g := New(Config{Seed: 7, SeaLevel: 0, HeightAmplitude: 4}, nil)
	pool := voxelpool.New()
	buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	task := g.CreateBlockTask(streamdep.BlockTaskParams{
		Voxels:    buf,
		BlockPos:  [3]int{0, -1, 0},
		BlockSize: 8,
	}).(*Task)
	task.Run()

	foundSolid := false
	for z := 0; z < 8; z++ {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				if buf.GetVoxel(x, y, z, 0) != uint64(Air) {
					foundSolid = true
				}
			}
		}
	}
	if !foundSolid {
		t.Fatalf("expected at least one solid voxel below sea level")
	}
}

func TestApplyResultDeliversGeneratedOutput(t *testing.T) {
	reg := volumeregistry.New()
	var got volumeregistry.BlockDataOutput
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { got = output },
	})

	g := New(Config{Seed: 1, SeaLevel: 0}, nil)
	pool := voxelpool.New()
	buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	task := g.CreateBlockTask(streamdep.BlockTaskParams{
		Voxels:    buf,
		VolumeID:  "v1",
		BlockPos:  [3]int{0, 0, 0},
		BlockSize: 4,
	}).(*Task)
	task.WithRegistry(reg, &priority.Dependency{DropDistanceSquared: 1 << 30})

	task.Run()
	task.ApplyResult()

	if got.Type != volumeregistry.TypeGenerated {
		t.Fatalf("expected a generated output, got %+v", got)
	}
	if got.Voxels == nil {
		t.Fatalf("expected voxel buffer to be delivered")
	}
}

func TestIsCancelledWhenDependencyInvalid(t *testing.T) {
	dep := streamdep.New(nil, nil)
	g := New(Config{Seed: 1}, nil)
	pool := voxelpool.New()
	buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	task := g.CreateBlockTask(streamdep.BlockTaskParams{Voxels: buf, Dependency: dep, BlockSize: 4}).(*Task)

	dep.Invalidate()
	if !task.IsCancelled() {
		t.Fatalf("expected task to be cancelled once its dependency is invalidated")
	}
}
