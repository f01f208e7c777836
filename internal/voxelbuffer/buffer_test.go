package voxelbuffer

import (
	"testing"

	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

func newTestBuffer(size voxeltypes.Vec3i) *Buffer {
	return New(voxelpool.New(), nil, size)
}

func TestNewBlockSdfDefaultIsMaxPositive(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 16, Y: 16, Z: 16})
	got := b.GetVoxelF(0, 0, 0, ChannelSDF)
	if got < 0.99 || got > 1.01 {
		t.Fatalf("GetVoxelF(SDF) = %v, want ~1.0", got)
	}
}

func TestSetVoxelMaterialisesChannel(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	if err := b.SetVoxel(42, 3, 4, 5, ChannelType); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}
	if b.IsUniform(ChannelType) {
		t.Fatal("IsUniform(TYPE) = true, want false after SetVoxel")
	}
	for z := 0; z < 8; z++ {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				want := uint64(0)
				if x == 3 && y == 4 && z == 5 {
					want = 42
				}
				if got := b.GetVoxel(x, y, z, ChannelType); got != want {
					t.Fatalf("GetVoxel(%d,%d,%d) = %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
}

func TestFillThenCompress(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.Fill(7, ChannelType)
	b.CompressUniformChannels()
	if !b.IsUniform(ChannelType) {
		t.Fatal("IsUniform(TYPE) = false, want true after compress")
	}
	if got := b.GetVoxel(0, 0, 0, ChannelType); got != 7 {
		t.Fatalf("GetVoxel after compress = %d, want 7", got)
	}
	if _, ok := b.ChannelRaw(ChannelType); ok {
		t.Fatal("ChannelRaw after compress: ok = true, want false (uniform)")
	}
}

func TestCompressIdempotent(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.Fill(3, ChannelType)
	b.CompressUniformChannels()
	b.CompressUniformChannels()
	if !b.IsUniform(ChannelType) {
		t.Fatal("expected uniform after double compress")
	}
}

func TestDuplicateEquals(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	b.SetChannelDepth(2, Depth16)
	if err := b.SetVoxel(0x1234, 1, 2, 3, 2); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}
	d := b.Duplicate()
	if !d.Equals(b) {
		t.Fatal("Duplicate() does not Equal original")
	}
}

func TestFillAreaNoOpWhenMinEqualsMax(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	before := b.IsUniform(ChannelType)
	b.FillArea(9, voxeltypes.Vec3i{X: 2, Y: 2, Z: 2}, voxeltypes.Vec3i{X: 2, Y: 5, Z: 5}, ChannelType)
	after := b.IsUniform(ChannelType)
	if before != after {
		t.Fatal("FillArea with zero-extent axis should be a no-op")
	}
}

func TestFillAreaWritesRun(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	b.FillArea(5, voxeltypes.Vec3i{X: 1, Y: 1, Z: 1}, voxeltypes.Vec3i{X: 3, Y: 4, Z: 3}, ChannelType)
	for y := 1; y < 4; y++ {
		if got := b.GetVoxel(1, y, 1, ChannelType); got != 5 {
			t.Fatalf("GetVoxel(1,%d,1) = %d, want 5", y, got)
		}
	}
	if got := b.GetVoxel(0, 0, 0, ChannelType); got != 0 {
		t.Fatalf("GetVoxel(0,0,0) = %d, want untouched default 0", got)
	}
}

func TestCopyFullCommutesWithCompress(t *testing.T) {
	a1 := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	a2 := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	src := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	src.Fill(9, ChannelType)

	// A.copy_from(B); A.compress()
	if err := a1.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	a1.CompressUniformChannels()

	// B.compress(); A.copy_from(B)
	src.CompressUniformChannels()
	if err := a2.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}

	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				v1 := a1.GetVoxel(x, y, z, ChannelType)
				v2 := a2.GetVoxel(x, y, z, ChannelType)
				if v1 != v2 {
					t.Fatalf("GetVoxel(%d,%d,%d) diverges: %d != %d", x, y, z, v1, v2)
				}
			}
		}
	}
}

func TestDownscaleNearestNeighbour(t *testing.T) {
	src := newTestBuffer(voxeltypes.Vec3i{X: 8, Y: 8, Z: 8})
	dst := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})

	for z := 0; z < 8; z++ {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				_ = src.SetVoxel(uint64(x+y*8+z*64), x, y, z, ChannelType)
			}
		}
	}

	src.DownscaleTo(dst, voxeltypes.Vec3i{}, voxeltypes.Vec3i{X: 8, Y: 8, Z: 8}, voxeltypes.Vec3i{})

	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := src.GetVoxel(x*2, y*2, z*2, ChannelType)
				got := dst.GetVoxel(x, y, z, ChannelType)
				if got != want {
					t.Fatalf("dst(%d,%d,%d) = %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
}

func TestSetVoxelOutOfRangeErrors(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	if err := b.SetVoxel(1, 100, 0, 0, ChannelType); err == nil {
		t.Fatal("SetVoxel out of range: want error, got nil")
	}
}

func TestGetVoxelOutOfRangeReturnsDefault(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.ClearChannel(ChannelType, 11)
	if got := b.GetVoxel(999, 0, 0, ChannelType); got != 11 {
		t.Fatalf("GetVoxel out of range = %d, want defval 11", got)
	}
}

func TestTrySetVoxelSilentOutOfRange(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.TrySetVoxel(5, -1, -1, -1, ChannelType)
	if !b.IsUniform(ChannelType) {
		t.Fatal("TrySetVoxel out of range should not mutate the buffer")
	}
}

func TestD1UniformityMasksTailBits(t *testing.T) {
	// 10 voxels -> 2 bytes, 2 tail bits in byte 1 are don't-care.
	b := newTestBuffer(voxeltypes.Vec3i{X: 10, Y: 1, Z: 1})
	b.SetChannelDepth(2, Depth1)
	for x := 0; x < 10; x++ {
		_ = b.SetVoxel(1, x, 0, 0, 2)
	}
	if !b.IsUniform(2) {
		t.Fatal("D1 channel with all real bits set to 1 should be uniform regardless of tail padding")
	}
}

func TestEqualsDistinguishesUniformFromMaterialisedUniform(t *testing.T) {
	a := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.DecompressChannel(ChannelType) // materialises, logically still all zero (the default)

	if a.Equals(b) {
		t.Fatal("Equals: uniform and materialised-but-uniform channels should compare unequal")
	}
}

func TestClearChannelClampsValue(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.ClearChannel(ChannelType, 999999)
	if got := b.GetVoxel(0, 0, 0, ChannelType); got != encoding.MaxValue(Depth8) {
		t.Fatalf("GetVoxel = %d, want clamped max %d", got, encoding.MaxValue(Depth8))
	}
}

func TestCreateNegativeDimensionNoOp(t *testing.T) {
	b := newTestBuffer(voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	b.Create(-1, 4, 4)
	if b.Size().X != 4 {
		t.Fatalf("Create with non-positive dimension mutated size: %v", b.Size())
	}
}
