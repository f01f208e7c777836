// Package volumeregistry looks up per-volume callbacks and validity for
// the task runtime. It is the concrete in-memory implementation of the
// narrow interface load tasks rely on (component G).
package volumeregistry

import (
	"sync"

	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
)

// VolumeID identifies a registered volume.
type VolumeID string

// DataOutputCallback receives a completed load/generate result. userData
// is whatever the volume registered alongside the callback (typically a
// pointer back to the volume itself).
type DataOutputCallback func(userData any, output BlockDataOutput)

// OutputType distinguishes how a BlockDataOutput was produced.
type OutputType int

const (
	TypeLoaded OutputType = iota
	TypeGenerated
)

// BlockDataOutput is the bundle a load or generator task hands back to a
// volume through its registered callback.
type BlockDataOutput struct {
	Voxels      *voxelbuffer.Buffer
	Instances   any
	Position    [3]int
	Lod         uint8
	Dropped     bool
	Errored     bool
	MaxLodHint  uint8
	InitialLoad bool
	Type        OutputType
}

// Callbacks bundles a volume's output callback with its opaque user data.
type Callbacks struct {
	DataOutputCallback DataOutputCallback
	UserData           any
}

type entry struct {
	valid     bool
	callbacks Callbacks
}

// Registry is a process-wide, mutex-guarded map of volume id to its
// validity and callbacks. Grounded on the teacher's multiworld registry
// pattern: one map, one mutex, looked up by id on every request.
type Registry struct {
	mu      sync.RWMutex
	volumes map[VolumeID]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{volumes: make(map[VolumeID]*entry)}
}

// Register adds or replaces a volume's callbacks and marks it valid.
func (r *Registry) Register(id VolumeID, callbacks Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumes[id] = &entry{valid: true, callbacks: callbacks}
}

// Unregister marks a volume invalid without removing its entry, so
// in-flight tasks can still observe IsVolumeValid returning false rather
// than panicking on a missing lookup.
func (r *Registry) Unregister(id VolumeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.volumes[id]; ok {
		e.valid = false
	}
}

// IsVolumeValid reports whether id names a currently-registered, live
// volume.
func (r *Registry) IsVolumeValid(id VolumeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.volumes[id]
	return ok && e.valid
}

// GetVolumeCallbacks returns the callbacks registered for id. The second
// return value is false if id was never registered.
func (r *Registry) GetVolumeCallbacks(id VolumeID) (Callbacks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.volumes[id]
	if !ok {
		return Callbacks{}, false
	}
	return e.callbacks, true
}
