package dx12

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/dx12/gpucore"
)

// Config is the TOML form of the device options.
//
//	backend = "software"
//	adapter = 0
//	frame_count = 3
//	fence_timeout = "2s"
//	memory_budget_mb = 256
//	display_format = "R8G8B8A8_UNORM"
//
//	[heaps]
//	cbv_srv_uav = 1024
//	rtv = 16
//	dsv = 8
type Config struct {
	Backend        string     `toml:"backend"`
	Adapter        int        `toml:"adapter"`
	FrameCount     uint32     `toml:"frame_count"`
	FenceTimeout   string     `toml:"fence_timeout"`
	MemoryBudgetMB int        `toml:"memory_budget_mb"`
	DisplayFormat  string     `toml:"display_format"`
	Heaps          HeapConfig `toml:"heaps"`
}

// HeapConfig holds default descriptor heap capacities.
type HeapConfig struct {
	CBVSRVUAV uint32 `toml:"cbv_srv_uav"`
	RTV       uint32 `toml:"rtv"`
	DSV       uint32 `toml:"dsv"`
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("dx12: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data and validates it.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("dx12: parse config: %w", err)
	}
	if _, err := cfg.Options(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the config to device options. Unset fields keep the
// defaults.
func (c *Config) Options() ([]Option, error) {
	opts := []Option{
		WithBackend(c.Backend),
		WithAdapter(c.Adapter),
		WithFrameCount(c.FrameCount),
		WithHeapCapacities(HeapCapacities(c.Heaps)),
	}
	if c.MemoryBudgetMB != 0 {
		opts = append(opts, WithMemoryBudget(c.MemoryBudgetMB))
	}
	if c.FenceTimeout != "" {
		d, err := time.ParseDuration(c.FenceTimeout)
		if err != nil {
			return nil, fmt.Errorf("dx12: config fence_timeout: %w", err)
		}
		opts = append(opts, WithFenceTimeout(d))
	}
	if c.DisplayFormat != "" {
		f, err := gpucore.ParseFormat(c.DisplayFormat)
		if err != nil {
			return nil, fmt.Errorf("dx12: config display_format: %w", err)
		}
		opts = append(opts, WithDisplayFormat(f))
	}
	return opts, nil
}
