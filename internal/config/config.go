// Package config loads the compiler configuration from a YAML file, a .env file,
// NPUSCHED_ environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NPUSCHED"

// DefaultEnvFile is loaded when present and no explicit env file is given.
const DefaultEnvFile = ".env"

// Config is the top-level compiler configuration.
type Config struct {
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
	Arch     ArchConfig     `mapstructure:"arch" yaml:"arch"`
	Lowering LoweringConfig `mapstructure:"lowering" yaml:"lowering"`
	// Workers bounds the number of programs compiled concurrently. Zero uses one
	// worker per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0,max=1024"`
}

// ArchConfig selects the target architecture.
type ArchConfig struct {
	Preset string `mapstructure:"preset" yaml:"preset" validate:"omitempty,oneof=VPUX30XX VPUX311X VPUX37XX vpux30xx vpux311x vpux37xx"`
	// Custom overrides Preset when set.
	Custom *arch.Descriptor `mapstructure:"custom" yaml:"custom,omitempty"`
}

// LoweringConfig holds the lowering limits.
type LoweringConfig struct {
	MaxDMAPlanes    uint32 `mapstructure:"max_dma_planes" yaml:"max_dma_planes" validate:"min=1"`
	ParamBufferSize int    `mapstructure:"param_buffer_size" yaml:"param_buffer_size" validate:"min=1"`
}

// Descriptor resolves the configured architecture.
func (c *Config) Descriptor() (arch.Descriptor, error) {
	if c.Arch.Custom != nil {
		d := *c.Arch.Custom
		if k, err := arch.ParseKind(d.Name); err == nil {
			d.Kind = k
		}
		if err := d.Validate(); err != nil {
			return arch.Descriptor{}, err
		}
		return d, nil
	}
	return arch.PresetByName(c.Arch.Preset)
}

// LoweringOptions converts the lowering section into lowering options.
func (c *Config) LoweringOptions(log *logging.Logger) []lowering.Option {
	return []lowering.Option{
		lowering.WithLogger(log),
		lowering.WithMaxDMAPlanes(c.Lowering.MaxDMAPlanes),
		lowering.WithParamBufferSize(c.Lowering.ParamBufferSize),
	}
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":         "logging.level",
	"log-format":        "logging.format",
	"arch":              "arch.preset",
	"workers":           "workers",
	"max-dma-planes":    "lowering.max_dma_planes",
	"param-buffer-size": "lowering.param_buffer_size",
}

type loaderConfig struct {
	configFile string
	envFile    string
	flags      *pflag.FlagSet
}

// Option is a functional option for Load.
type Option func(*loaderConfig)

// WithConfigFile sets an explicit YAML config file. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile sets an explicit .env file. A missing file is an error.
func WithEnvFile(path string) Option {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// WithFlags binds the recognized flags of fs. Only flags set on the command line
// override other sources.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(lc *loaderConfig) { lc.flags = fs }
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.timestamp", true)
	v.SetDefault("arch.preset", arch.VPUX37XX.String())
	v.SetDefault("lowering.max_dma_planes", lowering.MaxDMAPlanes)
	v.SetDefault("lowering.param_buffer_size", lowering.DefaultParamBufferSize)
	v.SetDefault("workers", 0)
}

// Load builds and validates a Config.
func Load(opts ...Option) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	switch {
	case lc.envFile != "":
		if err := godotenv.Load(lc.envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", lc.envFile, err)
		}
	case fileExists(DefaultEnvFile):
		if err := godotenv.Load(DefaultEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", DefaultEnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if lc.flags != nil {
		for name, key := range flagKeys {
			if f := lc.flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
