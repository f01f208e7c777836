package voxelbuffer

import (
	"encoding/binary"

	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

// Fill clamps value to the channel's depth. If the channel is uniform,
// it updates the default value in place (no allocation). Otherwise it
// overwrites the existing buffer with value using a depth-appropriate
// memset or loop. The channel remains materialised (non-uniform storage)
// afterwards even though every voxel now logically agrees; callers run
// CompressUniformChannels to fold it back down.
func (b *Buffer) Fill(value uint64, chIdx int) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: Fill: channel %d out of range", chIdx)
		return
	}
	ch := &b.channels[chIdx]
	value = encoding.Clamp(value, ch.depth)

	if ch.data == nil {
		if ch.defval == value {
			return
		}
		ch.defval = value
		return
	}
	b.fillAllocated(chIdx, value)
}

// FillF is Fill routed through the real->raw encoding.
func (b *Buffer) FillF(value float64, chIdx int) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: FillF: channel %d out of range", chIdx)
		return
	}
	b.Fill(encoding.RealToRaw(value, b.channels[chIdx].depth), chIdx)
}

func (b *Buffer) fillAllocated(chIdx int, value uint64) {
	ch := &b.channels[chIdx]
	volume := b.Volume()

	switch ch.depth {
	case Depth1:
		var fillByte byte
		if value != 0 {
			fillByte = 0xff
		}
		memset(ch.data, fillByte)
	case Depth8:
		memset(ch.data, byte(value))
	case Depth16:
		for i := int64(0); i < volume; i++ {
			binary.LittleEndian.PutUint16(ch.data[i*2:], uint16(value))
		}
	case Depth24:
		b0, b1, b2 := byte(value), byte(value>>8), byte(value>>16)
		for i := int64(0); i < volume; i++ {
			o := i * 3
			ch.data[o] = b0
			ch.data[o+1] = b1
			ch.data[o+2] = b2
		}
	case Depth32:
		for i := int64(0); i < volume; i++ {
			binary.LittleEndian.PutUint32(ch.data[i*4:], uint32(value))
		}
	case Depth64:
		for i := int64(0); i < volume; i++ {
			binary.LittleEndian.PutUint64(ch.data[i*8:], value)
		}
	}
}

func memset(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

// FillArea fills the Y-run of every (x,z) column in [min,max) of channel
// chIdx with value. min/max are sorted and clamped to [0, size+1] first;
// if any resulting axis has zero extent, this is a no-op. A uniform
// channel whose default already equals value stays uniform; otherwise the
// channel is materialised first.
func (b *Buffer) FillArea(value uint64, min, max voxeltypes.Vec3i, chIdx int) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: FillArea: channel %d out of range", chIdx)
		return
	}
	min, max = voxeltypes.SortMinMax(min, max)

	lo := voxeltypes.Vec3i{}
	hi := b.size.Add(voxeltypes.Vec3i{X: 1, Y: 1, Z: 1})
	min = min.ClampTo(lo, hi)
	max = max.ClampTo(lo, hi)
	area := max.Sub(min)
	if area.X == 0 || area.Y == 0 || area.Z == 0 {
		return
	}

	ch := &b.channels[chIdx]
	value = encoding.Clamp(value, ch.depth)

	if ch.data == nil {
		if ch.defval == value {
			return
		}
		b.createChannel(chIdx, b.size, ch.defval)
	}

	for z := min.Z; z < max.Z; z++ {
		for x := min.X; x < max.X; x++ {
			dstRowIndex := b.index(x, min.Y, z)

			switch ch.depth {
			case Depth8:
				memset(ch.data[dstRowIndex:dstRowIndex+uint32(area.Y)], byte(value))
			case Depth16:
				for i := 0; i < area.Y; i++ {
					binary.LittleEndian.PutUint16(ch.data[(dstRowIndex+uint32(i))*2:], uint16(value))
				}
			case Depth32:
				for i := 0; i < area.Y; i++ {
					binary.LittleEndian.PutUint32(ch.data[(dstRowIndex+uint32(i))*4:], uint32(value))
				}
			case Depth64:
				for i := 0; i < area.Y; i++ {
					binary.LittleEndian.PutUint64(ch.data[(dstRowIndex+uint32(i))*8:], value)
				}
			case Depth1, Depth24:
				for y := min.Y; y < max.Y; y++ {
					b.setVoxelUnchecked(value, x, y, z, chIdx)
				}
			}
		}
	}
}
