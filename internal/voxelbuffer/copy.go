package voxelbuffer

import (
	"github.com/pkg/errors"

	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

// CopyFrom replaces the full contents of this buffer with other's,
// channel by channel. Both buffers must share the same size and each
// channel must share the same depth.
func (b *Buffer) CopyFrom(other *Buffer) error {
	if other.size != b.size {
		return errors.Errorf("voxelbuffer: CopyFrom: size mismatch %v != %v", other.size, b.size)
	}
	for i := range b.channels {
		if err := b.copyChannelFrom(other, i); err != nil {
			return err
		}
	}
	return nil
}

// CopyChannelFrom replaces one channel's contents with other's. Requires
// equal depth on that channel.
func (b *Buffer) CopyChannelFrom(other *Buffer, chIdx int) error {
	if !b.validateChannel(chIdx) {
		return errors.Errorf("voxelbuffer: CopyChannelFrom: channel %d out of range", chIdx)
	}
	return b.copyChannelFrom(other, chIdx)
}

func (b *Buffer) copyChannelFrom(other *Buffer, chIdx int) error {
	ch := &b.channels[chIdx]
	och := &other.channels[chIdx]
	if och.depth != ch.depth {
		return errors.Errorf("voxelbuffer: channel %d depth mismatch %v != %v", chIdx, och.depth, ch.depth)
	}

	if och.data != nil {
		if ch.data == nil {
			b.createChannelNoinit(chIdx, b.size)
		}
		copy(ch.data, och.data)
	} else if ch.data != nil {
		b.deleteChannelData(chIdx)
	}

	ch.defval = och.defval
	ch.depth = och.depth
	return nil
}

// CopyAreaFrom copies a rectangular sub-region of other's channel chIdx
// into this buffer at dstMin. srcMin/srcMax are sorted and clamped to
// other's size first; dstMin is clamped to this buffer's size. If both
// sides are uniform with equal default value, this is a no-op. If the
// requested area equals both block sizes in full, this degrades to a
// full CopyChannelFrom.
func (b *Buffer) CopyAreaFrom(other *Buffer, srcMin, srcMax, dstMin voxeltypes.Vec3i, chIdx int) error {
	if !b.validateChannel(chIdx) {
		return errors.Errorf("voxelbuffer: CopyAreaFrom: channel %d out of range", chIdx)
	}
	ch := &b.channels[chIdx]
	och := &other.channels[chIdx]
	if och.depth != ch.depth {
		return errors.Errorf("voxelbuffer: CopyAreaFrom: channel %d depth mismatch %v != %v", chIdx, och.depth, ch.depth)
	}

	if ch.data == nil && och.data == nil && ch.defval == och.defval {
		return nil
	}

	srcMin, srcMax = voxeltypes.SortMinMax(srcMin, srcMax)
	srcMin = srcMin.ClampTo(voxeltypes.Vec3i{}, other.size)
	srcMax = srcMax.ClampTo(voxeltypes.Vec3i{}, other.size.Add(voxeltypes.Vec3i{X: 1, Y: 1, Z: 1}))
	dstMin = dstMin.ClampTo(voxeltypes.Vec3i{}, b.size)
	area := srcMax.Sub(srcMin)

	if area == b.size && area == other.size {
		return b.copyChannelFrom(other, chIdx)
	}

	if och.data != nil {
		if ch.data == nil {
			b.createChannel(chIdx, b.size, ch.defval)
		}

		if ch.depth == Depth8 {
			for z := 0; z < area.Z; z++ {
				for x := 0; x < area.X; x++ {
					srcRowIndex := other.index(x+srcMin.X, srcMin.Y, z+srcMin.Z)
					dstRowIndex := b.index(x+dstMin.X, dstMin.Y, z+dstMin.Z)
					copy(ch.data[dstRowIndex:dstRowIndex+uint32(area.Y)], och.data[srcRowIndex:srcRowIndex+uint32(area.Y)])
				}
			}
		} else {
			for z := 0; z < area.Z; z++ {
				for x := 0; x < area.X; x++ {
					for y := 0; y < area.Y; y++ {
						v := other.GetVoxel(srcMin.X+x, srcMin.Y+y, srcMin.Z+z, chIdx)
						b.setVoxelUnchecked(v, dstMin.X+x, dstMin.Y+y, dstMin.Z+z, chIdx)
					}
				}
			}
		}
	} else if ch.defval != och.defval {
		if ch.data == nil {
			b.createChannel(chIdx, b.size, ch.defval)
		}
		b.FillArea(och.defval, dstMin, dstMin.Add(area), chIdx)
	}
	return nil
}

// DownscaleTo performs a nearest-neighbour 2:1 downscale of the region
// [srcMin, srcMax) of this buffer into dst starting at dstMin, for every
// channel. A channel is skipped when both sides are uniform with the same
// default value.
func (b *Buffer) DownscaleTo(dst *Buffer, srcMin, srcMax, dstMin voxeltypes.Vec3i) {
	srcMin = srcMin.ClampTo(voxeltypes.Vec3i{}, b.size)
	srcMax = srcMax.ClampTo(voxeltypes.Vec3i{}, b.size.Add(voxeltypes.Vec3i{X: 1, Y: 1, Z: 1}))
	dstMax := dstMin.Add(srcMax.Sub(srcMin).Shr(1))

	dstMin = dstMin.ClampTo(voxeltypes.Vec3i{}, dst.size)
	dstMax = dstMax.ClampTo(voxeltypes.Vec3i{}, dst.size.Add(voxeltypes.Vec3i{X: 1, Y: 1, Z: 1}))

	for chIdx := 0; chIdx < MaxChannels; chIdx++ {
		srcCh := &b.channels[chIdx]
		dstCh := &dst.channels[chIdx]
		if srcCh.data == nil && dstCh.data == nil && srcCh.defval == dstCh.defval {
			continue
		}

		for z := dstMin.Z; z < dstMax.Z; z++ {
			for x := dstMin.X; x < dstMax.X; x++ {
				for y := dstMin.Y; y < dstMax.Y; y++ {
					pos := voxeltypes.Vec3i{X: x, Y: y, Z: z}
					srcPos := srcMin.Add(pos.Sub(dstMin).Scale(2))

					var v uint64
					if srcCh.data != nil {
						v = b.GetVoxel(srcPos.X, srcPos.Y, srcPos.Z, chIdx)
					} else {
						v = srcCh.defval
					}
					dst.setVoxelUnchecked(v, x, y, z, chIdx)
				}
			}
		}
	}
}

// Duplicate returns a new block of the same size with every channel
// fully copied.
func (b *Buffer) Duplicate() *Buffer {
	d := New(b.pool, b.log, b.size)
	for i := range b.channels {
		d.SetChannelDepth(i, b.channels[i].depth)
	}
	_ = d.CopyFrom(b)
	return d
}

// Equals compares size, per-channel depth, and logical content. Note
// that a uniform channel and a materialised-but-uniform channel compare
// unequal even though every voxel value matches: this method does not
// fold compression state before comparing (spec §9 design notes).
func (b *Buffer) Equals(other *Buffer) bool {
	if other.size != b.size {
		return false
	}
	for i := range b.channels {
		ch := &b.channels[i]
		och := &other.channels[i]

		if (ch.data == nil) != (och.data == nil) {
			return false
		}
		if ch.depth != och.depth {
			return false
		}
		if ch.data == nil {
			if ch.defval != och.defval {
				return false
			}
			continue
		}
		if ch.sizeInBytes != och.sizeInBytes {
			return false
		}
		for j := uint32(0); j < ch.sizeInBytes; j++ {
			if ch.data[j] != och.data[j] {
				return false
			}
		}
	}
	return true
}

// SetChannelDepth changes a channel's depth. If unchanged, this is a
// no-op. Otherwise any materialised data is dropped (no value
// conversion) and the default value is re-clamped to the new depth.
func (b *Buffer) SetChannelDepth(chIdx int, depth Depth) {
	if !b.validateChannel(chIdx) || depth >= DepthCount {
		b.logf("voxelbuffer: SetChannelDepth: invalid channel %d or depth %v", chIdx, depth)
		return
	}
	ch := &b.channels[chIdx]
	if ch.depth == depth {
		return
	}
	if ch.data != nil {
		b.logf("voxelbuffer: changing channel %d depth with present data, resetting channel", chIdx)
		b.deleteChannelData(chIdx)
	}
	ch.depth = depth
	ch.defval = encoding.Clamp(ch.defval, depth)
}

// GetChannelDepth returns a channel's current depth.
func (b *Buffer) GetChannelDepth(chIdx int) Depth {
	if !b.validateChannel(chIdx) {
		return Depth8
	}
	return b.channels[chIdx].depth
}
