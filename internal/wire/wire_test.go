package wire

import (
	"testing"

	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

func newTestBuffer() *voxelbuffer.Buffer {
	return voxelbuffer.New(voxelpool.New(), nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
}

func TestEncodeDecodeUniformRoundTrip(t *testing.T) {
	buf := newTestBuffer()
	buf.ClearChannel(voxelbuffer.ChannelType, 7)

	payload, err := Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(payload, voxelpool.New())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !buf.Equals(got) {
		t.Fatalf("round-tripped buffer does not equal original")
	}
}

func TestEncodeDecodeMaterialisedRoundTrip(t *testing.T) {
	buf := newTestBuffer()
	if err := buf.SetVoxel(9, 1, 2, 3, voxelbuffer.ChannelType); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}
	if err := buf.SetVoxel(0, 0, 0, 0, voxelbuffer.ChannelSDF); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}

	payload, err := Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(payload, voxelpool.New())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.GetVoxel(1, 2, 3, voxelbuffer.ChannelType) != 9 {
		t.Fatalf("expected voxel value 9 after round-trip")
	}
	if got.GetVoxel(0, 0, 0, voxelbuffer.ChannelSDF) != 0 {
		t.Fatalf("expected voxel value 0 after round-trip")
	}
}

func TestDecodeRejectsMissingHeaderLine(t *testing.T) {
	if _, err := Decode([]byte("no newline here"), voxelpool.New()); err == nil {
		t.Fatalf("expected an error for a payload with no header line")
	}
}
