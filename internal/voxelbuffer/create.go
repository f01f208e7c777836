package voxelbuffer

import (
	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

// Create (re)sizes the block. It is a silent no-op if any dimension is
// <= 0. When the size actually changes, every currently-allocated channel
// is freed and re-created with its own default value; uniform channels
// stay uniform.
func (b *Buffer) Create(sx, sy, sz int) {
	if sx <= 0 || sy <= 0 || sz <= 0 {
		return
	}
	newSize := voxeltypes.Vec3i{X: sx, Y: sy, Z: sz}
	if newSize != b.size {
		for i := range b.channels {
			ch := &b.channels[i]
			if ch.data != nil {
				b.deleteChannelData(i)
				b.createChannel(i, newSize, ch.defval)
			}
		}
		b.size = newSize
	}
}

// Clear frees every non-uniform channel. Default values are retained.
func (b *Buffer) Clear() {
	for i := range b.channels {
		if b.channels[i].data != nil {
			b.deleteChannelData(i)
		}
	}
}

// ClearChannel frees a channel's data if present and sets its default
// value, clamped to the channel's depth. The channel becomes uniform.
func (b *Buffer) ClearChannel(chIdx int, value uint64) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: ClearChannel: channel %d out of range", chIdx)
		return
	}
	ch := &b.channels[chIdx]
	if ch.data != nil {
		b.deleteChannelData(chIdx)
	}
	ch.defval = encoding.Clamp(value, ch.depth)
}

// ClearChannelF is ClearChannel routed through the real->raw encoding.
func (b *Buffer) ClearChannelF(chIdx int, value float64) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: ClearChannelF: channel %d out of range", chIdx)
		return
	}
	depth := b.channels[chIdx].depth
	b.ClearChannel(chIdx, encoding.RealToRaw(value, depth))
}

// SetDefaultValues sets every channel's default value (clamped to its own
// depth) without touching any allocated data. Per-voxel contents of
// already-materialised channels are not rewritten.
func (b *Buffer) SetDefaultValues(vals [MaxChannels]uint64) {
	for i := range b.channels {
		b.channels[i].defval = encoding.Clamp(vals[i], b.channels[i].depth)
	}
}

func (b *Buffer) createChannel(chIdx int, size voxeltypes.Vec3i, defval uint64) {
	b.createChannelNoinit(chIdx, size)
	b.fillAllocated(chIdx, defval)
}

func (b *Buffer) createChannelNoinit(chIdx int, size voxeltypes.Vec3i) {
	ch := &b.channels[chIdx]
	sizeInBytes := encoding.SizeInBytesForVolume(uint64(size.Volume()), ch.depth)
	buf, err := b.pool.Allocate(int(sizeInBytes))
	if err != nil {
		b.logf("voxelbuffer: allocate channel %d (%d bytes): %v", chIdx, sizeInBytes, err)
		return
	}
	ch.data = buf
	ch.sizeInBytes = sizeInBytes
}

func (b *Buffer) deleteChannelData(chIdx int) {
	ch := &b.channels[chIdx]
	if ch.data == nil {
		return
	}
	b.pool.Recycle(ch.data, int(ch.sizeInBytes))
	ch.data = nil
	ch.sizeInBytes = 0
}

// Destroy recycles every materialised channel buffer. Call it when the
// block is no longer needed; ownership of any buffer handed out via
// ChannelRaw must have ended before this is called.
func (b *Buffer) Destroy() {
	b.Clear()
}
