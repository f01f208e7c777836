package voxelbuffer

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"voxelcraft.ai/voxelblock/internal/encoding"
)

// IsUniform reports whether every voxel in channel chIdx is logically
// equal. An already-uniform-compressed channel (data == nil) always
// returns true. A materialised channel is scanned element-by-element at
// its native depth; for Depth1 the scan masks the final byte's unused
// tail bits so a volume that is not a multiple of 8 cannot produce a
// false negative.
func (b *Buffer) IsUniform(chIdx int) bool {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: IsUniform: channel %d out of range", chIdx)
		return true
	}
	ch := &b.channels[chIdx]
	if ch.data == nil {
		return true
	}

	volume := b.Volume()
	switch ch.depth {
	case Depth1:
		return isUniformD1(ch.data, volume)
	case Depth8:
		return isUniformBytes(ch.data[:volume])
	case Depth24:
		return isUniformTriples(ch.data[:volume*3])
	case Depth16:
		return isUniform16(ch.data, volume)
	case Depth32:
		return isUniform32(ch.data, volume)
	case Depth64:
		return isUniform64(ch.data, volume)
	default:
		return true
	}
}

func isUniformBytes(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	v0 := data[0]
	for _, v := range data[1:] {
		if v != v0 {
			return false
		}
	}
	return true
}

func isUniformTriples(data []byte) bool {
	if len(data) < 3 {
		return true
	}
	b0, b1, b2 := data[0], data[1], data[2]
	for i := 3; i <= len(data)-3; i += 3 {
		if data[i] != b0 || data[i+1] != b1 || data[i+2] != b2 {
			return false
		}
	}
	return true
}

func isUniform16(data []byte, n int64) bool {
	if n == 0 {
		return true
	}
	v0 := binary.LittleEndian.Uint16(data)
	for i := int64(1); i < n; i++ {
		if binary.LittleEndian.Uint16(data[i*2:]) != v0 {
			return false
		}
	}
	return true
}

func isUniform32(data []byte, n int64) bool {
	if n == 0 {
		return true
	}
	v0 := binary.LittleEndian.Uint32(data)
	for i := int64(1); i < n; i++ {
		if binary.LittleEndian.Uint32(data[i*4:]) != v0 {
			return false
		}
	}
	return true
}

func isUniform64(data []byte, n int64) bool {
	if n == 0 {
		return true
	}
	v0 := binary.LittleEndian.Uint64(data)
	for i := int64(1); i < n; i++ {
		if binary.LittleEndian.Uint64(data[i*8:]) != v0 {
			return false
		}
	}
	return true
}

// isUniformD1 scans whole bytes for the common case, then masks the tail
// bits of the final partial byte so padding beyond `volume` bits never
// causes a false negative. This fixes the tail-masking gap the upstream
// source leaves open (spec §9 design notes).
func isUniformD1(data []byte, volume int64) bool {
	fullBytes := volume >> 3
	tailBits := volume & 7

	if fullBytes == 0 && tailBits == 0 {
		return true
	}

	// Every voxel equals voxel 0 only if every byte is all zeros or all
	// ones, matching bit 0.
	var v0 byte
	if data[0]&1 != 0 {
		v0 = 0xff
	}

	for i := int64(0); i < fullBytes; i++ {
		if data[i] != v0 {
			return false
		}
	}
	if tailBits > 0 {
		mask := byte((1 << tailBits) - 1)
		if data[fullBytes]&mask != v0&mask {
			return false
		}
	}
	return true
}

// CompressUniformChannels folds every materialised channel that turns out
// to be uniform back down to a default value, freeing its buffer. Calling
// it twice in a row is idempotent: the second call finds nothing left to
// fold.
func (b *Buffer) CompressUniformChannels() {
	for i := range b.channels {
		ch := &b.channels[i]
		if ch.data != nil && b.IsUniform(i) {
			b.ClearChannel(i, readRaw(ch.data, 0, ch.depth))
		}
	}
}

// DecompressChannel materialises a uniform channel into a buffer filled
// with its current default value. A no-op if already materialised.
func (b *Buffer) DecompressChannel(chIdx int) {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: DecompressChannel: channel %d out of range", chIdx)
		return
	}
	ch := &b.channels[chIdx]
	if ch.data == nil {
		b.createChannel(chIdx, b.size, ch.defval)
	}
}

// GetChannelCompression reports whether chIdx is currently uniform or
// materialised.
func (b *Buffer) GetChannelCompression(chIdx int) Compression {
	if !b.validateChannel(chIdx) {
		b.logf("voxelbuffer: GetChannelCompression: channel %d out of range", chIdx)
		return CompressionNone
	}
	if b.channels[chIdx].data == nil {
		return CompressionUniform
	}
	return CompressionNone
}

// ChannelRaw exposes the backing buffer of a materialised channel, for
// the meshing pipeline and other external collaborators that need direct
// read access. Returns (nil, false) for a uniform channel.
func (b *Buffer) ChannelRaw(chIdx int) ([]byte, bool) {
	if !b.validateChannel(chIdx) {
		return nil, false
	}
	ch := &b.channels[chIdx]
	if ch.data == nil {
		return nil, false
	}
	return ch.data, true
}

// SetChannelRaw materialises chIdx (allocating through the pool if it
// isn't already) and overwrites its bytes with data. data must be
// exactly the size a freshly materialised channel of this buffer's
// volume and the channel's current depth would occupy; used by wire
// decoding to restore a persisted non-uniform channel in one copy.
func (b *Buffer) SetChannelRaw(chIdx int, data []byte) error {
	if !b.validateChannel(chIdx) {
		return errors.Errorf("voxelbuffer: SetChannelRaw: channel %d out of range", chIdx)
	}
	ch := &b.channels[chIdx]
	want := encoding.SizeInBytesForVolume(uint64(b.Volume()), ch.depth)
	if uint32(len(data)) != want {
		return errors.Errorf("voxelbuffer: SetChannelRaw: channel %d expects %d bytes, got %d", chIdx, want, len(data))
	}
	if ch.data == nil {
		b.createChannelNoinit(chIdx, b.size)
	}
	copy(ch.data, data)
	return nil
}
