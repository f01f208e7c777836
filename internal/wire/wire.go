// Package wire encodes a voxel block as a compact, self-describing byte
// payload: a JSON header line (dimensions) followed by the gob-encoded
// per-channel depth, default value, compression state, and (for
// materialised channels) raw bytes.
//
// Grounded on the teacher's snapshot codec (internal/persistence/snapshot):
// same header-line-then-gob-body shape. Unlike the teacher's snapshot
// writer, this codec does not wrap itself in zstd — diskstream compresses
// each encoded block as its own zstd frame, so compressing here too would
// compress each block twice.
package wire

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"voxelcraft.ai/voxelblock/internal/encoding"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
)

// Header describes a block's shape without touching its voxel data, so a
// reader can decide whether to decode the body at all.
type Header struct {
	Size [3]int `json:"size"`
}

// channelRecord is one channel's persisted form.
type channelRecord struct {
	Index       int
	Depth       encoding.Depth
	Defval      uint64
	Compression voxelbuffer.Compression
	Data        []byte
}

type body struct {
	Size     [3]int
	Channels []channelRecord
}

// Encode serializes buf into a self-contained payload: a JSON header
// line, a newline, then the gob-encoded body.
func Encode(buf *voxelbuffer.Buffer) ([]byte, error) {
	size := buf.Size()
	hdr := Header{Size: [3]int{size.X, size.Y, size.Z}}

	var b body
	b.Size = hdr.Size
	for ch := 0; ch < voxelbuffer.MaxChannels; ch++ {
		rec := channelRecord{
			Index:       ch,
			Depth:       buf.GetChannelDepth(ch),
			Compression: buf.GetChannelCompression(ch),
		}
		if rec.Compression == voxelbuffer.CompressionUniform {
			rec.Defval = buf.GetVoxel(0, 0, 0, ch)
		} else if raw, ok := buf.ChannelRaw(ch); ok {
			rec.Data = raw
		}
		b.Channels = append(b.Channels, rec)
	}

	hb, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("wire: encode header: %w", err)
	}

	var out bytes.Buffer
	out.Write(hb)
	out.WriteByte('\n')
	if err := gob.NewEncoder(&out).Encode(&b); err != nil {
		return nil, fmt.Errorf("wire: gob encode: %w", err)
	}
	return out.Bytes(), nil
}

// Decode reconstructs a voxel block from a payload produced by Encode,
// allocating its channel buffers through pool.
func Decode(payload []byte, pool *voxelpool.Pool) (*voxelbuffer.Buffer, error) {
	nl := bytes.IndexByte(payload, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("wire: decode: missing header line")
	}
	var hdr Header
	if err := json.Unmarshal(payload[:nl], &hdr); err != nil {
		return nil, fmt.Errorf("wire: decode header: %w", err)
	}

	var b body
	if err := gob.NewDecoder(bytes.NewReader(payload[nl+1:])).Decode(&b); err != nil {
		return nil, fmt.Errorf("wire: gob decode: %w", err)
	}

	size := voxeltypes.Vec3i{X: b.Size[0], Y: b.Size[1], Z: b.Size[2]}
	buf := voxelbuffer.New(pool, nil, size)

	for _, rec := range b.Channels {
		buf.SetChannelDepth(rec.Index, rec.Depth)
		switch rec.Compression {
		case voxelbuffer.CompressionUniform:
			buf.ClearChannel(rec.Index, rec.Defval)
		case voxelbuffer.CompressionNone:
			if err := buf.SetChannelRaw(rec.Index, rec.Data); err != nil {
				return nil, fmt.Errorf("wire: decode channel %d: %w", rec.Index, err)
			}
		}
	}
	return buf, nil
}
