package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultKernelConfig_Valid(t *testing.T) {
	if err := DefaultKernelConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadKernelConfig_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "kernel.yaml", `
ncpu: 4
aging_threshold: 10
tick_interval: 1ms
`)
	cfg, err := LoadKernelConfig(path)
	if err != nil {
		t.Fatalf("LoadKernelConfig: %v", err)
	}
	if cfg.NCPU != 4 {
		t.Errorf("NCPU = %d, want 4", cfg.NCPU)
	}
	if cfg.AgingThreshold != 10 {
		t.Errorf("AgingThreshold = %d, want 10", cfg.AgingThreshold)
	}
	if cfg.TickInterval != time.Millisecond {
		t.Errorf("TickInterval = %s, want 1ms", cfg.TickInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.NProc != 64 {
		t.Errorf("NProc = %d, want default 64", cfg.NProc)
	}
}

func TestLoadKernelConfig_Invalid(t *testing.T) {
	path := writeFile(t, "kernel.yaml", "ncpu: 0\n")
	_, err := LoadKernelConfig(path)
	if err == nil {
		t.Fatal("expected error for ncpu 0")
	}
	if !strings.Contains(err.Error(), "ncpu") {
		t.Errorf("error = %v, want mention of ncpu", err)
	}
}

func TestLoadServerConfig_NestedKernel(t *testing.T) {
	path := writeFile(t, "server.yaml", `
addr: ":9090"
log_level: debug
kernel:
  nproc: 16
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Kernel.NProc != 16 {
		t.Errorf("Kernel.NProc = %d, want 16", cfg.Kernel.NProc)
	}
	if cfg.Kernel.NCPU != 2 {
		t.Errorf("Kernel.NCPU = %d, want default 2", cfg.Kernel.NCPU)
	}
}

func TestLoadServerConfig_MissingFile(t *testing.T) {
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
