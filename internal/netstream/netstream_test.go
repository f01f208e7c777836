package netstream

import (
	"net/http/httptest"
	"strings"
	"testing"

	"voxelcraft.ai/voxelblock/internal/diskstream"
	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

func newTestServer(t *testing.T, source BlockSource) (*Client, func()) {
	t.Helper()
	pool := voxelpool.New()
	srv := NewServer(pool, nil)
	ts := httptest.NewServer(srv.Handler(source))

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := Dial(url, pool)
	if err != nil {
		ts.Close()
		t.Fatalf("Dial: %v", err)
	}
	return client, func() {
		client.Close()
		ts.Close()
	}
}

func TestLoadVoxelBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pool := voxelpool.New()
	idx, err := diskstream.Open(dir, pool)
	if err != nil {
		t.Fatalf("diskstream.Open: %v", err)
	}
	defer idx.Close()
	source := idx.VolumeStream("v1")

	stored := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	stored.Fill(uint64(7), 0)
	if err := source.StoreVoxelBlock([3]int{0, 0, 0}, 0, stored); err != nil {
		t.Fatalf("StoreVoxelBlock: %v", err)
	}

	client, closeAll := newTestServer(t, source)
	defer closeAll()

	buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	q := &streamdep.VoxelQuery{Buffer: buf, OriginInVoxels: [3]int{0, 0, 0}, Lod: 0}
	client.LoadVoxelBlock(q)

	if q.Result != streamdep.ResultBlockFound {
		t.Fatalf("expected ResultBlockFound, got %v", q.Result)
	}
	if got := buf.GetVoxel(1, 1, 1, 0); got != 7 {
		t.Fatalf("expected voxel value 7, got %d", got)
	}
}

func TestLoadVoxelBlockNotFound(t *testing.T) {
	dir := t.TempDir()
	pool := voxelpool.New()
	idx, err := diskstream.Open(dir, pool)
	if err != nil {
		t.Fatalf("diskstream.Open: %v", err)
	}
	defer idx.Close()
	source := idx.VolumeStream("v1")

	client, closeAll := newTestServer(t, source)
	defer closeAll()

	buf := voxelbuffer.New(pool, nil, voxeltypes.Vec3i{X: 4, Y: 4, Z: 4})
	q := &streamdep.VoxelQuery{Buffer: buf, OriginInVoxels: [3]int{9, 9, 9}, Lod: 0}
	client.LoadVoxelBlock(q)

	if q.Result != streamdep.ResultBlockNotFound {
		t.Fatalf("expected ResultBlockNotFound, got %v", q.Result)
	}
}

func TestLoadInstanceBlocksRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pool := voxelpool.New()
	idx, err := diskstream.Open(dir, pool)
	if err != nil {
		t.Fatalf("diskstream.Open: %v", err)
	}
	defer idx.Close()
	source := idx.VolumeStream("v1")

	if err := source.StoreInstanceBlock([3]int{2, 0, 0}, 0, `{"trees":3}`); err != nil {
		t.Fatalf("StoreInstanceBlock: %v", err)
	}

	client, closeAll := newTestServer(t, source)
	defer closeAll()

	q := &streamdep.InstancesQuery{Lod: 0, Position: [3]int{2, 0, 0}}
	client.LoadInstanceBlocks([]*streamdep.InstancesQuery{q})

	if q.Result != streamdep.ResultBlockFound {
		t.Fatalf("expected ResultBlockFound, got %v", q.Result)
	}
}
