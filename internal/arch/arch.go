// Package arch describes the target accelerators a schedule can be compiled for.
package arch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Kind identifies a target architecture. The numeric values are written into the
// binary header.
type Kind uint32

// Known architectures.
const (
	Unknown Kind = iota
	VPUX30XX
	VPUX311X
	VPUX37XX
)

// String returns the architecture name.
func (k Kind) String() string {
	switch k {
	case VPUX30XX:
		return "VPUX30XX"
	case VPUX311X:
		return "VPUX311X"
	case VPUX37XX:
		return "VPUX37XX"
	default:
		return "UNKNOWN"
	}
}

// ParseKind converts an architecture name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "VPUX30XX":
		return VPUX30XX, nil
	case "VPUX311X":
		return VPUX311X, nil
	case "VPUX37XX":
		return VPUX37XX, nil
	case "UNKNOWN", "":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown architecture %q", s)
	}
}

// Descriptor carries the hardware limits the lowering pass needs.
type Descriptor struct {
	Kind        Kind   `mapstructure:"-" yaml:"-"`
	Name        string `mapstructure:"name" yaml:"name"`
	NumClusters int    `mapstructure:"num_clusters" yaml:"num_clusters" validate:"min=1,max=64"`
	DMAPorts    int    `mapstructure:"dma_ports" yaml:"dma_ports" validate:"min=1,max=16"`
	MaxBarriers int    `mapstructure:"max_barriers" yaml:"max_barriers" validate:"min=1,max=1024"`
	CMXSize     uint64 `mapstructure:"cmx_size" yaml:"cmx_size" validate:"gt=0"`
	DDRSize     uint64 `mapstructure:"ddr_size" yaml:"ddr_size" validate:"gt=0"`
}

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

var presets = map[Kind]Descriptor{
	VPUX30XX: {Kind: VPUX30XX, Name: "VPUX30XX", NumClusters: 4, DMAPorts: 1, MaxBarriers: 64, CMXSize: 1 * mib, DDRSize: 2 * gib},
	VPUX311X: {Kind: VPUX311X, Name: "VPUX311X", NumClusters: 1, DMAPorts: 1, MaxBarriers: 32, CMXSize: 2 * mib, DDRSize: 1 * gib},
	VPUX37XX: {Kind: VPUX37XX, Name: "VPUX37XX", NumClusters: 2, DMAPorts: 2, MaxBarriers: 32, CMXSize: 2 * mib, DDRSize: 4 * gib},
}

// Preset returns the descriptor of a known architecture.
func Preset(k Kind) (Descriptor, error) {
	d, ok := presets[k]
	if !ok {
		return Descriptor{}, fmt.Errorf("no preset for architecture %s", k)
	}
	return d, nil
}

// PresetByName returns the descriptor of a known architecture by name.
func PresetByName(name string) (Descriptor, error) {
	k, err := ParseKind(name)
	if err != nil {
		return Descriptor{}, err
	}
	return Preset(k)
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

// Validate checks the descriptor limits.
func (d Descriptor) Validate() error {
	if err := getValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid architecture descriptor: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid architecture descriptor: %w", err)
	}
	return nil
}
