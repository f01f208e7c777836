package loadtask

import (
	"bytes"
	"log"
	"testing"

	"voxelcraft.ai/voxelblock/internal/priority"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/volumeregistry"
)

type fakeStream struct {
	result         streamdep.Result
	supportsInst   bool
	instanceResult streamdep.Result

	gotOrigin [3]int
	gotLod    uint8
}

func (f *fakeStream) LoadVoxelBlock(q *streamdep.VoxelQuery) {
	f.gotOrigin = q.OriginInVoxels
	f.gotLod = q.Lod
	q.Result = f.result
}
func (f *fakeStream) SupportsInstanceBlocks() bool           { return f.supportsInst }
func (f *fakeStream) LoadInstanceBlocks(queries []*streamdep.InstancesQuery) {
	for _, q := range queries {
		q.Result = f.instanceResult
	}
}

type fakeGenerator struct {
	task streamdep.Task
}

func (f *fakeGenerator) CreateBlockTask(params streamdep.BlockTaskParams) streamdep.Task {
	return f.task
}

type fakeGenTask struct{ ran bool }

func (f *fakeGenTask) Run()            { f.ran = true }
func (f *fakeGenTask) GetPriority() int64 { return 0 }
func (f *fakeGenTask) IsCancelled() bool  { return false }
func (f *fakeGenTask) ApplyResult()       {}

func newParams(stream streamdep.Stream, gen streamdep.Generator, reg *volumeregistry.Registry) Params {
	return Params{
		VolumeID:          "v1",
		BlockPos:          [3]int{0, 0, 0},
		LodIndex:          0,
		BlockSize:         16,
		Pool:              voxelpool.New(),
		Dependency:        streamdep.New(stream, gen),
		PriorityDep:       &priority.Dependency{DropDistanceSquared: 1 << 30},
		Registry:          reg,
		GenerateCacheData: true,
	}
}

func TestLoadTaskFoundDeliversToCallback(t *testing.T) {
	reg := volumeregistry.New()
	var got volumeregistry.BlockDataOutput
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { got = output },
	})

	task := New(newParams(&fakeStream{result: streamdep.ResultBlockFound}, nil, reg), nil)
	task.Run()
	if task.IsCancelled() {
		t.Fatalf("task should not be cancelled")
	}
	task.ApplyResult()

	if got.Dropped || got.Errored {
		t.Fatalf("expected a clean found result, got %+v", got)
	}
	if got.Voxels == nil {
		t.Fatalf("expected voxel buffer to be delivered")
	}
}

func TestLoadTaskQueryOriginShiftsByLod(t *testing.T) {
	reg := volumeregistry.New()
	stream := &fakeStream{result: streamdep.ResultBlockFound}

	params := newParams(stream, nil, reg)
	params.BlockPos = [3]int{2, -1, 3}
	params.BlockSize = 16
	params.LodIndex = 2
	task := New(params, nil)
	task.Run()

	wantScale := 1 << params.LodIndex
	want := [3]int{
		params.BlockPos[0] * params.BlockSize * wantScale,
		params.BlockPos[1] * params.BlockSize * wantScale,
		params.BlockPos[2] * params.BlockSize * wantScale,
	}
	if stream.gotOrigin != want {
		t.Fatalf("expected origin_in_voxels %v (position<<lod)*block_size, got %v", want, stream.gotOrigin)
	}
	if stream.gotLod != params.LodIndex {
		t.Fatalf("expected lod %d passed through to the query, got %d", params.LodIndex, stream.gotLod)
	}
}

func TestLoadTaskNotFoundWithoutGeneratorDrops(t *testing.T) {
	reg := volumeregistry.New()
	var got volumeregistry.BlockDataOutput
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { got = output },
	})

	task := New(newParams(&fakeStream{result: streamdep.ResultBlockNotFound}, nil, reg), nil)
	task.Run()
	task.ApplyResult()

	if !got.Dropped {
		t.Fatalf("expected dropped output with no generator, got %+v", got)
	}
}

func TestLoadTaskNotFoundWithGeneratorDelegatesAndSkipsApply(t *testing.T) {
	reg := volumeregistry.New()
	called := false
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { called = true },
	})

	genTask := &fakeGenTask{}
	task := New(newParams(&fakeStream{result: streamdep.ResultBlockNotFound}, &fakeGenerator{task: genTask}, reg), nil)
	task.Run()
	if !task.requestedGeneratorTask {
		t.Fatalf("expected task to delegate to the generator")
	}
	task.ApplyResult()

	if called {
		t.Fatalf("expected the delegating task to skip invoking the callback itself")
	}
}

func TestLoadTaskNotFoundWithGenerateCacheDataDisabledDrops(t *testing.T) {
	reg := volumeregistry.New()
	var got volumeregistry.BlockDataOutput
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { got = output },
	})

	genTask := &fakeGenTask{}
	params := newParams(&fakeStream{result: streamdep.ResultBlockNotFound}, &fakeGenerator{task: genTask}, reg)
	params.GenerateCacheData = false
	task := New(params, nil)
	task.Run()

	if task.requestedGeneratorTask {
		t.Fatalf("expected GenerateCacheData=false to skip the generator hand-off")
	}
	task.ApplyResult()

	if !got.Dropped {
		t.Fatalf("expected dropped output with caching disabled, got %+v", got)
	}
	if genTask.ran {
		t.Fatalf("expected the generator task to never run")
	}
}

func TestLoadTaskErrorResult(t *testing.T) {
	reg := volumeregistry.New()
	var got volumeregistry.BlockDataOutput
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { got = output },
	})

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	task := New(newParams(&fakeStream{result: streamdep.ResultError}, nil, reg), logger)
	task.Run()
	task.ApplyResult()

	if !got.Errored {
		t.Fatalf("expected errored output, got %+v", got)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected the stream error to be logged")
	}
}

func TestLoadTaskCancelledWhenDependencyInvalidated(t *testing.T) {
	reg := volumeregistry.New()
	called := false
	reg.Register("v1", volumeregistry.Callbacks{
		DataOutputCallback: func(userData any, output volumeregistry.BlockDataOutput) { called = true },
	})

	params := newParams(&fakeStream{result: streamdep.ResultBlockFound}, nil, reg)
	task := New(params, nil)
	task.Run()
	params.Dependency.Invalidate()

	if !task.IsCancelled() {
		t.Fatalf("expected task to be cancelled once dependency is invalidated")
	}
	task.ApplyResult()
	if called {
		t.Fatalf("expected cancelled task to skip invoking the callback")
	}
}

func TestLoadTaskCancelledWhenTooFar(t *testing.T) {
	reg := volumeregistry.New()
	params := newParams(&fakeStream{result: streamdep.ResultBlockFound}, nil, reg)
	params.PriorityDep = &priority.Dependency{DropDistanceSquared: -1}
	task := New(params, nil)
	task.Run()
	_ = task.GetPriority()

	if !task.IsCancelled() {
		t.Fatalf("expected task to be cancelled once its distance exceeds drop distance")
	}
}
