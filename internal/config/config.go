package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// KernelConfig holds the tunables of a simulated kernel.
type KernelConfig struct {
	NCPU           int           `yaml:"ncpu"`            // Scheduler loops (default 2)
	NProc          int           `yaml:"nproc"`           // Process table slots (default 64)
	TickInterval   time.Duration `yaml:"tick_interval"`   // Wall time per timer tick (default 10ms)
	AgingInterval  int           `yaml:"aging_interval"`  // Ticks between aging passes (default 1)
	AgingThreshold int           `yaml:"aging_threshold"` // Waiting ticks before FCFS -> RR promotion (default 800)
	RRQuantum      int           `yaml:"rr_quantum"`      // Round-robin quantum in ticks, reported only
	IdleBackoff    time.Duration `yaml:"idle_backoff"`    // Pause when no process is runnable (0 = yield only)
	MemoryPages    int           `yaml:"memory_pages"`    // Physical page pool size
	PageSize       int           `yaml:"page_size"`       // Bytes per page
	StackPages     int           `yaml:"stack_pages"`     // Pages per kernel stack
	ImagePages     int           `yaml:"image_pages"`     // Pages in the initial address space
	InitName       string        `yaml:"init_name"`       // Name of the root process
	ShellName      string        `yaml:"shell_name"`      // Children of this process land in the RR tier
	SnapshotEvery  int           `yaml:"snapshot_every"`  // Ticks between persisted snapshots (0 = off)
}

// DefaultKernelConfig returns sensible defaults.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		NCPU:           2,
		NProc:          64,
		TickInterval:   10 * time.Millisecond,
		AgingInterval:  1,
		AgingThreshold: 800,
		RRQuantum:      4,
		IdleBackoff:    200 * time.Microsecond,
		MemoryPages:    256,
		PageSize:       4096,
		StackPages:     1,
		ImagePages:     1,
		InitName:       "init",
		ShellName:      "sh",
		SnapshotEvery:  50,
	}
}

// Validate checks the configuration for values the kernel cannot run with.
func (c KernelConfig) Validate() error {
	switch {
	case c.NCPU < 1:
		return fmt.Errorf("ncpu must be >= 1, got %d", c.NCPU)
	case c.NProc < 2:
		return fmt.Errorf("nproc must be >= 2, got %d", c.NProc)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	case c.AgingInterval < 1:
		return fmt.Errorf("aging_interval must be >= 1, got %d", c.AgingInterval)
	case c.AgingThreshold < 1:
		return fmt.Errorf("aging_threshold must be >= 1, got %d", c.AgingThreshold)
	case c.PageSize < 1 || c.MemoryPages < 1:
		return fmt.Errorf("memory_pages and page_size must be positive")
	case c.StackPages < 1 || c.ImagePages < 1:
		return fmt.Errorf("stack_pages and image_pages must be >= 1")
	case c.InitName == "":
		return fmt.Errorf("init_name must not be empty")
	}
	return nil
}

// ServerConfig holds configuration for the procsim server.
type ServerConfig struct {
	Addr      string       `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string       `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string       `yaml:"log_format"` // Log format: text, json
	DBPath    string       `yaml:"db"`         // SQLite database path (default ~/.procsim/procsim.db, ":memory:" for testing)
	Kernel    KernelConfig `yaml:"kernel"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Kernel:    DefaultKernelConfig(),
	}
}

// LoadServerConfig reads a YAML config file on top of the defaults.
// Keys missing from the file keep their default values.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Kernel.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadKernelConfig reads a YAML file containing only kernel tunables.
func LoadKernelConfig(path string) (KernelConfig, error) {
	cfg := DefaultKernelConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read kernel config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse kernel config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("kernel config %s: %w", path, err)
	}
	return cfg, nil
}
