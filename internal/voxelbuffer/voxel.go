package voxelbuffer

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"voxelcraft.ai/voxelblock/internal/encoding"
)

// GetVoxel reads the raw value of voxel (x,y,z) in channel chIdx.
// Out-of-range coordinates log an error and return the channel's default
// value; an out-of-range channel index logs an error and returns 0.
func (b *Buffer) GetVoxel(x, y, z, chIdx int) uint64 {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: GetVoxel: channel %d out of range", chIdx)
		return 0
	}
	ch := &b.channels[chIdx]
	if !b.validatePos(x, y, z) {
		b.logf("voxelbuffer: GetVoxel: position (%d,%d,%d) out of range for size %v", x, y, z, b.size)
		return ch.defval
	}
	if ch.data == nil {
		return ch.defval
	}
	return readRaw(ch.data, b.index(x, y, z), ch.depth)
}

// GetVoxelF is GetVoxel routed through the raw->real decoding.
func (b *Buffer) GetVoxelF(x, y, z, chIdx int) float64 {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: GetVoxelF: channel %d out of range", chIdx)
		return 0
	}
	return encoding.RawToReal(b.GetVoxel(x, y, z, chIdx), b.channels[chIdx].depth)
}

// SetVoxel clamps value to the channel's depth and writes it at (x,y,z).
// If the channel is uniform and the clamped value equals the current
// default, no allocation occurs. Out-of-range coordinates or channels
// return an error and do not mutate the buffer.
func (b *Buffer) SetVoxel(value uint64, x, y, z, chIdx int) error {
	if !b.validateChannel(chIdx) {
		return errors.Errorf("voxelbuffer: SetVoxel: channel %d out of range", chIdx)
	}
	if !b.validatePos(x, y, z) {
		return errors.Errorf("voxelbuffer: SetVoxel: position (%d,%d,%d) out of range for size %v", x, y, z, b.size)
	}
	b.setVoxelUnchecked(value, x, y, z, chIdx)
	return nil
}

func (b *Buffer) setVoxelUnchecked(value uint64, x, y, z, chIdx int) {
	ch := &b.channels[chIdx]
	value = encoding.Clamp(value, ch.depth)

	if ch.data == nil {
		if ch.defval == value {
			return
		}
		b.createChannel(chIdx, b.size, ch.defval)
	}

	writeRaw(ch.data, b.index(x, y, z), ch.depth, value)
}

// SetVoxelF is SetVoxel routed through the real->raw encoding.
func (b *Buffer) SetVoxelF(value float64, x, y, z, chIdx int) error {
	if !b.validateChannel(chIdx) {
		return errors.Errorf("voxelbuffer: SetVoxelF: channel %d out of range", chIdx)
	}
	return b.SetVoxel(encoding.RealToRaw(value, b.channels[chIdx].depth), x, y, z, chIdx)
}

// TrySetVoxel performs the same write as SetVoxel but is silent (no log,
// no error) when the position is out of range. Use only where being
// outside the block is an expected, harmless case.
func (b *Buffer) TrySetVoxel(value uint64, x, y, z, chIdx int) {
	if !b.validateChannel(chIdx) || !b.validatePos(x, y, z) {
		return
	}
	b.setVoxelUnchecked(value, x, y, z, chIdx)
}

func readRaw(data []byte, i uint32, d Depth) uint64 {
	switch d {
	case Depth1:
		return uint64((data[i>>3] >> (i & 7)) & 1)
	case Depth8:
		return uint64(data[i])
	case Depth16:
		return uint64(binary.LittleEndian.Uint16(data[i*2:]))
	case Depth24:
		o := i * 3
		return uint64(data[o]) | uint64(data[o+1])<<8 | uint64(data[o+2])<<16
	case Depth32:
		return uint64(binary.LittleEndian.Uint32(data[i*4:]))
	case Depth64:
		return binary.LittleEndian.Uint64(data[i*8:])
	default:
		return 0
	}
}

func writeRaw(data []byte, i uint32, d Depth, value uint64) {
	switch d {
	case Depth1:
		m := byte(1) << (i & 7)
		if value != 0 {
			data[i>>3] |= m
		} else {
			data[i>>3] &^= m
		}
	case Depth8:
		data[i] = byte(value)
	case Depth16:
		binary.LittleEndian.PutUint16(data[i*2:], uint16(value))
	case Depth24:
		o := i * 3
		data[o] = byte(value)
		data[o+1] = byte(value >> 8)
		data[o+2] = byte(value >> 16)
	case Depth32:
		binary.LittleEndian.PutUint32(data[i*4:], uint32(value))
	case Depth64:
		binary.LittleEndian.PutUint64(data[i*8:], value)
	}
}
