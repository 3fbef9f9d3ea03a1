package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/lowering"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "VPUX37XX", cfg.Arch.Preset)
	assert.Equal(t, uint32(lowering.MaxDMAPlanes), cfg.Lowering.MaxDMAPlanes)
	assert.Equal(t, lowering.DefaultParamBufferSize, cfg.Lowering.ParamBufferSize)

	desc, err := cfg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, arch.VPUX37XX, desc.Kind)
}

func TestLoadPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	file := writeFile(t, "config.yml", `
logging:
  level: warn
  format: json
arch:
  preset: VPUX30XX
lowering:
  max_dma_planes: 64
workers: 2
`)
	t.Setenv("NPUSCHED_LOGGING_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.String("arch", "", "")
	require.NoError(t, fs.Parse([]string{"--workers=8"}))

	cfg, err := Load(WithConfigFile(file), WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level, "env overrides file")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "VPUX30XX", cfg.Arch.Preset, "unset flag keeps file value")
	assert.Equal(t, uint32(64), cfg.Lowering.MaxDMAPlanes)
	assert.Equal(t, 8, cfg.Workers, "flag overrides file")
}

func TestLoadEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	env := writeFile(t, "test.env", "NPUSCHED_LOWERING_PARAM_BUFFER_SIZE=512\n")
	t.Setenv("NPUSCHED_LOWERING_PARAM_BUFFER_SIZE", "")
	require.NoError(t, os.Unsetenv("NPUSCHED_LOWERING_PARAM_BUFFER_SIZE"))

	cfg, err := Load(WithEnvFile(env))
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Lowering.ParamBufferSize)
}

func TestLoadCustomArch(t *testing.T) {
	t.Chdir(t.TempDir())
	file := writeFile(t, "config.yml", `
arch:
  custom:
    name: VPUX30XX
    num_clusters: 2
    dma_ports: 3
    max_barriers: 16
    cmx_size: 65536
    ddr_size: 1048576
`)
	cfg, err := Load(WithConfigFile(file))
	require.NoError(t, err)

	desc, err := cfg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, arch.VPUX30XX, desc.Kind)
	assert.Equal(t, 3, desc.DMAPorts)
	assert.Equal(t, uint64(65536), desc.CMXSize)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name string
		opts func(t *testing.T) []Option
	}{
		{"missing config file", func(t *testing.T) []Option {
			return []Option{WithConfigFile(filepath.Join(t.TempDir(), "absent.yml"))}
		}},
		{"missing env file", func(t *testing.T) []Option {
			return []Option{WithEnvFile(filepath.Join(t.TempDir(), "absent.env"))}
		}},
		{"bad log level", func(t *testing.T) []Option {
			return []Option{WithConfigFile(writeFile(t, "c.yml", "logging:\n  level: loud\n"))}
		}},
		{"bad preset", func(t *testing.T) []Option {
			return []Option{WithConfigFile(writeFile(t, "c.yml", "arch:\n  preset: GPU\n"))}
		}},
		{"zero planes", func(t *testing.T) []Option {
			return []Option{WithConfigFile(writeFile(t, "c.yml", "lowering:\n  max_dma_planes: 0\n"))}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts(t)...)
			assert.Error(t, err)
		})
	}
}

func TestDescriptorRejectsInvalidCustom(t *testing.T) {
	cfg := &Config{Arch: ArchConfig{Custom: &arch.Descriptor{Name: "toy"}}}
	_, err := cfg.Descriptor()
	assert.Error(t, err)
}
