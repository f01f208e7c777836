// Package config loads the voxelblock daemon's tuning file: worker count,
// block size, drop distance, cache-on-miss policy, default channel depth,
// and the disk, net and generator settings.
//
// Grounded on the teacher's internal/sim/tuning (a flat yaml.v3-decoded
// struct loaded with Load(path)) plus internal/protocol's two-step
// schema-then-unmarshal pattern (decode to a generic document, validate
// against an embedded JSON schema, only then decode into the typed
// struct).
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Tuning is the daemon's full configuration.
type Tuning struct {
	WorkerCount         int     `yaml:"worker_count"`
	BlockSize           int     `yaml:"block_size"`
	DropDistanceVoxels  float64 `yaml:"drop_distance_voxels"`
	RequestInstances    bool    `yaml:"request_instances"`
	DefaultChannelDepth string  `yaml:"default_channel_depth"`

	// GenerateCacheData gates whether a block miss spawns a generator
	// task (true) or simply drops the buffer (false). Defaults to true
	// when the key is absent from the document.
	GenerateCacheData bool `yaml:"generate_cache_data"`

	Disk DiskConfig `yaml:"disk"`
	Net  NetConfig  `yaml:"net"`
	Gen  GenConfig  `yaml:"gen"`
}

// DiskConfig configures the diskstream backend.
type DiskConfig struct {
	Directory string `yaml:"directory"`
}

// NetConfig configures the netstream backend.
type NetConfig struct {
	RemoteURL string `yaml:"remote_url"`
}

// GenConfig configures the default procedural generator.
type GenConfig struct {
	Seed                            int64   `yaml:"seed"`
	SeaLevel                        int     `yaml:"sea_level"`
	HeightAmplitude                 float64 `yaml:"height_amplitude"`
	OreClusterProbScalePermille     int     `yaml:"ore_cluster_prob_scale_permille"`
	TerrainClusterProbScalePermille int     `yaml:"terrain_cluster_prob_scale_permille"`
}

// schemaJSON validates the document shape before it's decoded into
// Tuning, the same role the protocol package's embedded schemas play for
// wire messages.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "worker_count": {"type": "integer", "minimum": 0},
    "block_size": {"type": "integer", "minimum": 1},
    "drop_distance_voxels": {"type": "number", "minimum": 0},
    "request_instances": {"type": "boolean"},
    "default_channel_depth": {"type": "string", "enum": ["D1", "D8", "D16", "D24", "D32", "D64"]},
    "generate_cache_data": {"type": "boolean"},
    "disk": {
      "type": "object",
      "properties": {"directory": {"type": "string"}}
    },
    "net": {
      "type": "object",
      "properties": {"remote_url": {"type": "string"}}
    },
    "gen": {
      "type": "object",
      "properties": {
        "seed": {"type": "integer"},
        "sea_level": {"type": "integer"},
        "height_amplitude": {"type": "number"},
        "ore_cluster_prob_scale_permille": {"type": "integer", "minimum": 0, "maximum": 1000},
        "terrain_cluster_prob_scale_permille": {"type": "integer", "minimum": 0, "maximum": 1000}
      }
    }
  }
}`

func mustReader(s string) io.Reader { return strings.NewReader(s) }

var schema = compileSchema()

func compileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tuning.schema.json", mustReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	s, err := c.Compile("tuning.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: compile embedded schema: %v", err))
	}
	return s
}

// Load reads path as YAML, validates its document shape against the
// embedded schema, then decodes it into a Tuning.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := schema.Validate(doc); err != nil {
		return t, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if m, ok := doc.(map[string]any); !ok || m["generate_cache_data"] == nil {
		t.GenerateCacheData = true
	}
	return withDefaults(t), nil
}

func withDefaults(t Tuning) Tuning {
	if t.WorkerCount <= 0 {
		t.WorkerCount = 0 // taskruntime.New treats <= 0 as GOMAXPROCS(0)
	}
	if t.BlockSize <= 0 {
		t.BlockSize = 16
	}
	if t.DropDistanceVoxels <= 0 {
		t.DropDistanceVoxels = 512
	}
	if t.Gen.HeightAmplitude == 0 {
		t.Gen.HeightAmplitude = 24
	}
	if t.Disk.Directory == "" {
		t.Disk.Directory = "./data/voxelblocks"
	}
	return t
}
