// Package voxelbuffer implements the voxel block container: a fixed-size
// 3D cube of up to MaxChannels parallel channels, each independently
// bit-depth-encoded and independently uniform-compressible.
package voxelbuffer

import (
	"log"

	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

// Channel indices. Channel 0 and 1 have a fixed semantic identity; 2-7 are
// free for user data.
const (
	ChannelType = 0
	ChannelSDF  = 1

	MaxChannels = 8
)

// Compression reports whether a channel currently holds a materialised
// buffer or is folded down to a single default value.
type Compression int

const (
	CompressionUniform Compression = iota
	CompressionNone
)

// Depth is re-exported so callers don't need to import the encoding
// package just to name a channel's bit depth.
type Depth = encoding.Depth

const (
	Depth1     = encoding.Depth1
	Depth8     = encoding.Depth8
	Depth16    = encoding.Depth16
	Depth24    = encoding.Depth24
	Depth32    = encoding.Depth32
	Depth64    = encoding.Depth64
	DepthCount = encoding.DepthCount
)

type channel struct {
	depth       Depth
	defval      uint64
	data        []byte
	sizeInBytes uint32
}

// Buffer is the voxel block container. The zero value is not usable;
// construct with New.
type Buffer struct {
	pool *voxelpool.Pool
	log  *log.Logger

	size     voxeltypes.Vec3i
	channels [MaxChannels]channel
}

// New creates an empty buffer backed by pool. Every channel starts
// uniform with its default value; the SDF channel (1) defaults to the
// maximum positive raw value of its depth, the "empty" sentinel.
func New(pool *voxelpool.Pool, logger *log.Logger, size voxeltypes.Vec3i) *Buffer {
	b := &Buffer{pool: pool, log: logger}
	for i := range b.channels {
		b.channels[i].depth = Depth8
	}
	b.channels[ChannelSDF].defval = encoding.MaxValue(Depth8)
	b.Create(size.X, size.Y, size.Z)
	return b
}

func (b *Buffer) logf(format string, args ...any) {
	if b.log != nil {
		b.log.Printf(format, args...)
	}
}

// Size returns the block's dimensions.
func (b *Buffer) Size() voxeltypes.Vec3i {
	return b.size
}

// Volume returns sx*sy*sz.
func (b *Buffer) Volume() int64 {
	return b.size.Volume()
}

func (b *Buffer) index(x, y, z int) uint32 {
	return uint32(z*b.size.X*b.size.Y + x*b.size.Y + y)
}

func (b *Buffer) validatePos(x, y, z int) bool {
	return x >= 0 && x < b.size.X && y >= 0 && y < b.size.Y && z >= 0 && z < b.size.Z
}

func (b *Buffer) validateChannel(ch int) bool {
	return ch >= 0 && ch < MaxChannels
}
