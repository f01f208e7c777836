// Package loadtask implements the async load-block task: query a stream
// for a block's voxel data, fall back to a generator on a miss, and hand
// the result back to the owning volume through the volume registry.
//
// Grounded on the original engine's LoadBlockDataTask: allocate a fresh
// buffer, issue a single query, branch on its result, optionally delegate
// to a generator task, then serialize the result back through a single
// apply-result call.
package loadtask

import (
	"log"

	"voxelcraft.ai/voxelblock/internal/priority"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
	"voxelcraft.ai/voxelblock/internal/volumeregistry"
)

// Params configures a single load-block task. BlockSize is in voxels
// along each axis; the task allocates a BlockSize^3 buffer for the
// query.
type Params struct {
	VolumeID         volumeregistry.VolumeID
	BlockPos         [3]int
	LodIndex         uint8
	BlockSize        int
	Pool             *voxelpool.Pool
	Dependency       *streamdep.Dependency
	PriorityDep      *priority.Dependency
	Registry         *volumeregistry.Registry
	RequestInstances bool
	UseGPU           bool

	// GenerateCacheData, when false, drops the buffer on a cache miss
	// instead of spawning a generator task even if one is configured.
	GenerateCacheData bool
}

// registryWirer is satisfied by generator tasks (gen.Task) that need the
// volume registry and priority dependency threaded through after
// creation, since streamdep.Generator.CreateBlockTask's signature is
// deliberately narrow.
type registryWirer interface {
	WithRegistry(reg *volumeregistry.Registry, priorityDep *priority.Dependency) streamdep.Task
}

// Task runs the load, then (exactly once) applies its result. It
// implements streamdep.Task so the task runtime can schedule it
// alongside generator tasks.
type Task struct {
	params Params
	log    *log.Logger

	hasRun               bool
	tooFar               bool
	requestedGeneratorTask bool
	generatorTask        streamdep.Task

	buffer   *voxelbuffer.Buffer
	result   streamdep.Result
	instances []*streamdep.InstancesQuery
	dropped  bool
	errored  bool
}

// New constructs a load task for the given block. logger may be nil, in
// which case log.Default() is used.
func New(params Params, logger *log.Logger) *Task {
	if logger == nil {
		logger = log.Default()
	}
	return &Task{params: params, log: logger}
}

func (t *Task) blockCenterInVoxels() [3]float64 {
	half := float64(t.params.BlockSize) / 2
	shift := uint(t.params.LodIndex)
	scale := float64(uint64(1) << shift)
	return [3]float64{
		(float64(t.params.BlockPos[0])*float64(t.params.BlockSize) + half) * scale,
		(float64(t.params.BlockPos[1])*float64(t.params.BlockSize) + half) * scale,
		(float64(t.params.BlockPos[2])*float64(t.params.BlockSize) + half) * scale,
	}
}

// Run performs the blocking stream query (and generator hand-off on a
// miss). It must run off the apply goroutine; the task runtime's worker
// pool is the intended caller.
func (t *Task) Run() {
	if !t.params.Dependency.IsValid() {
		t.dropped = true
		t.hasRun = true
		return
	}

	size := t.params.BlockSize
	lodScale := 1 << t.params.LodIndex
	t.buffer = voxelbuffer.New(t.params.Pool, t.log, voxeltypes.Vec3i{X: size, Y: size, Z: size})

	query := &streamdep.VoxelQuery{
		Buffer: t.buffer,
		OriginInVoxels: [3]int{
			t.params.BlockPos[0] * size * lodScale,
			t.params.BlockPos[1] * size * lodScale,
			t.params.BlockPos[2] * size * lodScale,
		},
		Lod:    t.params.LodIndex,
		Result: streamdep.ResultError,
	}

	stream := t.params.Dependency.Stream
	if stream != nil {
		stream.LoadVoxelBlock(query)
	}
	t.result = query.Result

	switch t.result {
	case streamdep.ResultError:
		t.errored = true
		t.log.Printf("loadtask: stream error loading volume %q block %v lod %d", t.params.VolumeID, t.params.BlockPos, t.params.LodIndex)

	case streamdep.ResultBlockNotFound:
		if gen := t.params.Dependency.Generator; t.params.GenerateCacheData && gen != nil {
			genTask := gen.CreateBlockTask(streamdep.BlockTaskParams{
				Voxels:     t.buffer,
				VolumeID:   string(t.params.VolumeID),
				BlockPos:   t.params.BlockPos,
				LodIndex:   t.params.LodIndex,
				BlockSize:  size,
				Dependency: t.params.Dependency,
				UseGPU:     t.params.UseGPU,
			})
			if genTask != nil {
				if wirer, ok := genTask.(registryWirer); ok {
					genTask = wirer.WithRegistry(t.params.Registry, t.params.PriorityDep)
				}
				t.generatorTask = genTask
				t.requestedGeneratorTask = true
			} else {
				t.dropped = true
			}
		} else {
			t.dropped = true
		}

	case streamdep.ResultBlockFound:
		if t.params.RequestInstances && stream != nil && stream.SupportsInstanceBlocks() {
			iq := &streamdep.InstancesQuery{
				Lod:      t.params.LodIndex,
				Position: t.params.BlockPos,
				Result:   streamdep.ResultError,
			}
			stream.LoadInstanceBlocks([]*streamdep.InstancesQuery{iq})
			t.instances = []*streamdep.InstancesQuery{iq}
		}
	}

	t.hasRun = true
}

// GetPriority scores this task's urgency given the current viewer state,
// and remembers whether the block has drifted past the drop distance so
// IsCancelled can report it.
func (t *Task) GetPriority() int64 {
	if t.params.PriorityDep == nil {
		return 0
	}
	var distSq float64
	v := t.params.PriorityDep.Evaluate(t.blockCenterInVoxels(), t.params.LodIndex, priority.BandLoad, &distSq)
	t.tooFar = distSq > t.params.PriorityDep.DropDistanceSquared
	return int64(v)
}

// IsCancelled reports whether this task's result should be discarded
// instead of applied: either its owning volume went away, or the block
// drifted out of range before the task ran.
func (t *Task) IsCancelled() bool {
	return !t.params.Dependency.IsValid() || t.tooFar
}

// ApplyResult delivers the completed load (or generator hand-off) to the
// owning volume's registered callback. Called by the task runtime's
// single apply goroutine, never concurrently with another ApplyResult
// for the same volume.
func (t *Task) ApplyResult() {
	if !t.hasRun {
		return
	}
	if t.requestedGeneratorTask {
		// The generator task owns the buffer and the eventual callback
		// from here; this task contributes nothing further.
		return
	}
	if !t.params.Dependency.IsValid() {
		return
	}
	if t.params.Registry == nil || !t.params.Registry.IsVolumeValid(t.params.VolumeID) {
		return
	}

	callbacks, ok := t.params.Registry.GetVolumeCallbacks(t.params.VolumeID)
	if !ok || callbacks.DataOutputCallback == nil {
		return
	}

	out := volumeregistry.BlockDataOutput{
		Voxels:      t.buffer,
		Position:    t.params.BlockPos,
		Lod:         t.params.LodIndex,
		Dropped:     t.dropped,
		Errored:     t.errored,
		InitialLoad: false,
		Type:        volumeregistry.TypeLoaded,
	}
	if len(t.instances) == 1 {
		out.Instances = t.instances[0].Data
	}
	callbacks.DataOutputCallback(callbacks.UserData, out)
}

// Delegate implements streamdep.Delegator: on a cache miss handled by a
// generator, the runtime reschedules the returned task instead of this
// one.
func (t *Task) Delegate() streamdep.Task {
	return t.generatorTask
}
