// Package diskstream is a file-backed streamdep.Stream: blocks live as
// zstd-compressed frames appended to one region file per volume, indexed
// by a SQLite table mapping (volume, block position, lod) to a byte
// range.
//
// Grounded on the teacher's internal/persistence/snapshot (zstd framing)
// and internal/persistence/indexdb (database/sql over modernc.org/sqlite,
// prepared statements, no ORM).
package diskstream

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/wire"
)

// Index owns one SQLite block-index database and a set of region files
// under dir, shared across every volume persisted there. Use VolumeStream
// to get a streamdep.Stream bound to a single volume id.
type Index struct {
	dir  string
	pool *voxelpool.Pool
	db   *sql.DB

	mu      sync.Mutex
	regions map[string]*os.File
}

// Open opens (creating if necessary) a diskstream index rooted at dir.
// pool is used to allocate decoded block buffers.
func Open(dir string, pool *voxelpool.Pool) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskstream: mkdir %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("diskstream: open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("diskstream: pragma: %w", err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS block_index (
			volume_id TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			lod INTEGER NOT NULL,
			region_file TEXT NOT NULL,
			offset INTEGER NOT NULL,
			length INTEGER NOT NULL,
			checksum INTEGER NOT NULL,
			PRIMARY KEY (volume_id, cx, cy, cz, lod)
		);`,
		`CREATE TABLE IF NOT EXISTS instance_index (
			volume_id TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			lod INTEGER NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY (volume_id, cx, cy, cz, lod)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("diskstream: schema: %w", err)
		}
	}

	return &Index{dir: dir, pool: pool, db: db, regions: make(map[string]*os.File)}, nil
}

// Close releases the index database and every open region file.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var firstErr error
	for _, f := range ix.regions {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := ix.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// VolumeStream returns a streamdep.Stream (and the StoreVoxelBlock writer
// behind it) bound to volumeID. Every VolumeStream sharing an Index also
// shares its SQLite connection and region-file handles.
func (ix *Index) VolumeStream(volumeID string) *VolumeStream {
	return &VolumeStream{index: ix, volumeID: volumeID}
}

func (ix *Index) regionFile(volumeID string) (*os.File, string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if f, ok := ix.regions[volumeID]; ok {
		return f, regionFileName(volumeID), nil
	}
	name := regionFileName(volumeID)
	f, err := os.OpenFile(filepath.Join(ix.dir, name), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("diskstream: open region %s: %w", name, err)
	}
	ix.regions[volumeID] = f
	return f, name, nil
}

func regionFileName(volumeID string) string {
	return "region-" + volumeID + ".bin"
}

// VolumeStream is a streamdep.Stream bound to one volume id. Construct it
// with Index.VolumeStream.
type VolumeStream struct {
	index    *Index
	volumeID string
}

// StoreVoxelBlock persists buf for (pos, lod) under this stream's volume,
// appending a new zstd frame to the volume's region file and recording
// its byte range in the index. Overwrites any prior entry for the same
// key.
func (s *VolumeStream) StoreVoxelBlock(pos [3]int, lod uint8, buf *voxelbuffer.Buffer) error {
	payload, err := wire.Encode(buf)
	if err != nil {
		return fmt.Errorf("diskstream: encode: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("diskstream: new zstd writer: %w", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	enc.Close()
	checksum := xxhash.Sum64(compressed)

	f, name, err := s.index.regionFile(s.volumeID)
	if err != nil {
		return err
	}

	s.index.mu.Lock()
	defer s.index.mu.Unlock()
	offset, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return fmt.Errorf("diskstream: seek region %s: %w", name, err)
	}
	if _, err := f.Write(compressed); err != nil {
		return fmt.Errorf("diskstream: append region %s: %w", name, err)
	}

	_, err = s.index.db.Exec(
		`INSERT INTO block_index (volume_id, cx, cy, cz, lod, region_file, offset, length, checksum)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (volume_id, cx, cy, cz, lod) DO UPDATE SET
		   region_file=excluded.region_file, offset=excluded.offset,
		   length=excluded.length, checksum=excluded.checksum`,
		s.volumeID, pos[0], pos[1], pos[2], lod, name, offset, len(compressed), int64(checksum),
	)
	if err != nil {
		return fmt.Errorf("diskstream: index block: %w", err)
	}
	return nil
}

// StoreInstanceBlock persists a JSON-encoded instance blob for (pos, lod)
// under this stream's volume.
func (s *VolumeStream) StoreInstanceBlock(pos [3]int, lod uint8, jsonBlob string) error {
	_, err := s.index.db.Exec(
		`INSERT INTO instance_index (volume_id, cx, cy, cz, lod, json) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (volume_id, cx, cy, cz, lod) DO UPDATE SET json=excluded.json`,
		s.volumeID, pos[0], pos[1], pos[2], lod, jsonBlob,
	)
	if err != nil {
		return fmt.Errorf("diskstream: index instance block: %w", err)
	}
	return nil
}

// LoadVoxelBlock implements streamdep.Stream. It looks up the block's
// byte range, reads and decompresses it, verifies its checksum, and
// decodes it into q.Buffer.
func (s *VolumeStream) LoadVoxelBlock(q *streamdep.VoxelQuery) {
	size := q.Buffer.Size()
	blockSize := size.X
	if blockSize == 0 {
		blockSize = 1
	}
	// OriginInVoxels is (position << lod) * block_size; divide out both
	// factors to recover the logical block position StoreVoxelBlock
	// indexes by.
	divisor := blockSize * (1 << q.Lod)
	cx, cy, cz := q.OriginInVoxels[0]/divisor, q.OriginInVoxels[1]/divisor, q.OriginInVoxels[2]/divisor

	var regionFile string
	var offset, length, checksum int64
	row := s.index.db.QueryRow(
		`SELECT region_file, offset, length, checksum FROM block_index
		 WHERE volume_id = ? AND cx = ? AND cy = ? AND cz = ? AND lod = ?`,
		s.volumeID, cx, cy, cz, q.Lod,
	)
	if err := row.Scan(&regionFile, &offset, &length, &checksum); err != nil {
		if err == sql.ErrNoRows {
			q.Result = streamdep.ResultBlockNotFound
			return
		}
		q.Result = streamdep.ResultError
		return
	}

	s.index.mu.Lock()
	f, err := os.Open(filepath.Join(s.index.dir, regionFile))
	s.index.mu.Unlock()
	if err != nil {
		q.Result = streamdep.ResultError
		return
	}
	defer f.Close()

	compressed := make([]byte, length)
	if _, err := f.ReadAt(compressed, offset); err != nil {
		q.Result = streamdep.ResultError
		return
	}
	if int64(xxhash.Sum64(compressed)) != checksum {
		q.Result = streamdep.ResultError
		return
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		q.Result = streamdep.ResultError
		return
	}
	payload, err := dec.DecodeAll(compressed, nil)
	dec.Close()
	if err != nil {
		q.Result = streamdep.ResultError
		return
	}

	decoded, err := wire.Decode(payload, s.index.pool)
	if err != nil {
		q.Result = streamdep.ResultError
		return
	}
	for ch := 0; ch < voxelbuffer.MaxChannels; ch++ {
		q.Buffer.SetChannelDepth(ch, decoded.GetChannelDepth(ch))
	}
	if err := q.Buffer.CopyFrom(decoded); err != nil {
		q.Result = streamdep.ResultError
		return
	}
	q.Result = streamdep.ResultBlockFound
}

// SupportsInstanceBlocks reports true: instance blobs are stored in a
// sibling SQLite table alongside the voxel block index.
func (s *VolumeStream) SupportsInstanceBlocks() bool { return true }

// LoadInstanceBlocks implements streamdep.Stream.
func (s *VolumeStream) LoadInstanceBlocks(queries []*streamdep.InstancesQuery) {
	for _, q := range queries {
		var raw string
		row := s.index.db.QueryRow(
			`SELECT json FROM instance_index WHERE volume_id = ? AND cx = ? AND cy = ? AND cz = ? AND lod = ?`,
			s.volumeID, q.Position[0], q.Position[1], q.Position[2], q.Lod,
		)
		if err := row.Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				q.Result = streamdep.ResultBlockNotFound
			} else {
				q.Result = streamdep.ResultError
			}
			continue
		}
		q.Data = raw
		q.Result = streamdep.ResultBlockFound
	}
}
