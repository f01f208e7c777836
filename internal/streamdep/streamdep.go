// Package streamdep bundles a stream and generator reference behind a
// single shared, invalidatable handle so pending load tasks can detect
// that their owning volume has been torn down.
package streamdep

import (
	"sync/atomic"

	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
)

// Stream is the narrow capability a load task needs from a persistence
// backend. Concrete implementations live in diskstream and netstream.
type Stream interface {
	LoadVoxelBlock(q *VoxelQuery)
	SupportsInstanceBlocks() bool
	LoadInstanceBlocks(queries []*InstancesQuery)
}

// Result is the outcome of a single stream query.
type Result int

const (
	ResultError Result = iota
	ResultBlockNotFound
	ResultBlockFound
)

// VoxelQuery carries a single block load request/response. Callers own
// Buffer's lifetime; LoadVoxelBlock only ever writes into it.
type VoxelQuery struct {
	Buffer         *voxelbuffer.Buffer
	OriginInVoxels [3]int
	Lod            uint8
	Result         Result
}

// InstancesQuery carries a single instance-block load request/response.
type InstancesQuery struct {
	Lod      uint8
	Position [3]int
	Data     any
	Result   Result
}

// Generator is the narrow capability a load task needs to hand a miss off
// to procedural generation.
type Generator interface {
	CreateBlockTask(params BlockTaskParams) Task
}

// Task is the minimal shape the task runtime needs from any task,
// generator-spawned or otherwise. loadtask.Task and any generator task
// implement it.
type Task interface {
	Run()
	GetPriority() int64
	IsCancelled() bool
	ApplyResult()
}

// Delegator is implemented by a task whose Run may hand off to a
// different task instead of producing a result itself (loadtask.Task on
// a cache miss routed to a generator). The runtime checks Delegate after
// Run returns; a non-nil result is rescheduled in the delegating task's
// place, and the delegating task's own ApplyResult is skipped.
type Delegator interface {
	Delegate() Task
}

// BlockTaskParams is handed to Generator.CreateBlockTask; it mirrors the
// fields LoadBlockDataTask would have used to generate this block itself.
type BlockTaskParams struct {
	Voxels     *voxelbuffer.Buffer
	VolumeID   string
	BlockPos   [3]int
	LodIndex   uint8
	BlockSize  int
	Dependency *Dependency
	UseGPU     bool
}

// Dependency is the shared, immutable-after-construction bundle of
// {stream, generator, valid}. valid is cleared exactly once, when the
// owning volume is destroyed; every pending task reads it through
// IsValid before emitting a result.
type Dependency struct {
	Stream    Stream
	Generator Generator

	valid atomic.Bool
}

// New constructs a Dependency with valid=true.
func New(stream Stream, generator Generator) *Dependency {
	d := &Dependency{Stream: stream, Generator: generator}
	d.valid.Store(true)
	return d
}

// IsValid reports whether the owning volume is still alive.
func (d *Dependency) IsValid() bool {
	return d.valid.Load()
}

// Invalidate marks the dependency dead. Called once, when the owning
// volume is torn down. Idempotent.
func (d *Dependency) Invalidate() {
	d.valid.Store(false)
}
