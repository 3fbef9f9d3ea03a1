// Package graphio reads and writes graph description files.
//
// A description is a YAML (or JSON) document listing the program interface and an
// ordered list of items. Each item either declares a named barrier or defines a task:
//
//	name: conv-net
//	arch: VPUX37XX
//	weights_size: 512
//	items:
//	  - barrier: loaded
//	    real_id: 0
//	  - task: load
//	    update: [loaded]
//	    ops:
//	      - copy:
//	          port: 0
//	          input:  {name: in,  shape: [1, 16, 4, 4], dtype: f16, order: NHWC, space: staging-pool}
//	          output: {name: act, shape: [1, 16, 4, 4], dtype: f16, order: NHWC, space: cmx}
//
// Barrier references must name a barrier declared by an earlier item.
package graphio

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/npusched/internal/tensor"
)

// Description is the document form of a graph.
type Description struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id,omitempty"`
	Arch string `yaml:"arch,omitempty"`
	// WeightsFile is read relative to the description file.
	WeightsFile string `yaml:"weights_file,omitempty"`
	// WeightsSize allocates a zero-filled constant pool when no file is given.
	WeightsSize int          `yaml:"weights_size,omitempty"`
	Inputs      []TensorDesc `yaml:"inputs,omitempty"`
	Outputs     []TensorDesc `yaml:"outputs,omitempty"`
	Items       []Item       `yaml:"items"`
}

// TensorDesc names a network input or output.
type TensorDesc struct {
	Name   string `yaml:"name"`
	Buffer Buffer `yaml:"buffer"`
}

// Item declares a barrier or defines a task.
type Item struct {
	Barrier string `yaml:"barrier,omitempty"`
	// RealID defaults to the declaration index of the barrier.
	RealID *int `yaml:"real_id,omitempty"`

	Task   string   `yaml:"task,omitempty"`
	Wait   []string `yaml:"wait,flow,omitempty"`
	Update []string `yaml:"update,flow,omitempty"`
	Ops    []Op     `yaml:"ops,omitempty"`
}

// Op holds exactly one operation.
type Op struct {
	Copy    *Copy    `yaml:"copy,omitempty"`
	Compute *Compute `yaml:"compute,omitempty"`
	Kernel  *Kernel  `yaml:"kernel,omitempty"`
}

// Buffer describes a buffer reference.
type Buffer struct {
	Name         string        `yaml:"name"`
	Shape        []int         `yaml:"shape,flow"`
	DType        string        `yaml:"dtype"`
	Order        *Order        `yaml:"order,omitempty"`
	Strides      []int64       `yaml:"strides,flow,omitempty"`
	Space        string        `yaml:"space"`
	Sections     []int         `yaml:"sections,flow,omitempty"`
	Offset       uint64        `yaml:"offset,omitempty"`
	Swizzling    uint8         `yaml:"swizzling,omitempty"`
	Distribution *Distribution `yaml:"distribution,omitempty"`
}

// Distribution describes how a buffer is spread over clusters.
type Distribution struct {
	Mode      string  `yaml:"mode"`
	Clusters  int     `yaml:"clusters"`
	NumTiles  []int   `yaml:"num_tiles,flow,omitempty"`
	Alignment []int   `yaml:"alignment,flow,omitempty"`
	Kernel    [2]int  `yaml:"kernel,flow,omitempty"`
	Strides   [2]int  `yaml:"strides,flow,omitempty"`
	Pads      Padding `yaml:"pads,omitempty"`
}

// Padding is a four-sided padding.
type Padding struct {
	Left   int `yaml:"left,omitempty"`
	Right  int `yaml:"right,omitempty"`
	Top    int `yaml:"top,omitempty"`
	Bottom int `yaml:"bottom,omitempty"`
}

// Copy describes a DMA transfer.
type Copy struct {
	Flavor     string      `yaml:"flavor,omitempty"`
	Port       int         `yaml:"port"`
	Input      Buffer      `yaml:"input"`
	Output     Buffer      `yaml:"output"`
	OutOfOrder bool        `yaml:"out_of_order,omitempty"`
	Critical   bool        `yaml:"critical,omitempty"`
	Descriptor *Descriptor `yaml:"descriptor,omitempty"`
}

// Descriptor is a strided DMA pattern.
type Descriptor struct {
	Len            uint32 `yaml:"len"`
	SrcWidth       uint32 `yaml:"src_width"`
	SrcStride      uint32 `yaml:"src_stride"`
	SrcPlaneStride uint32 `yaml:"src_plane_stride"`
	DstWidth       uint32 `yaml:"dst_width"`
	DstStride      uint32 `yaml:"dst_stride"`
	DstPlaneStride uint32 `yaml:"dst_plane_stride"`
	NumPlanes      uint32 `yaml:"num_planes"`
}

// Compute describes a compute-array task.
type Compute struct {
	Type             string    `yaml:"type"`
	Input            Buffer    `yaml:"input"`
	Weights          *Buffer   `yaml:"weights,omitempty"`
	WeightTable      *Buffer   `yaml:"weight_table,omitempty"`
	Output           Buffer    `yaml:"output"`
	Kernel           [2]int    `yaml:"kernel,flow"`
	Strides          [2]int    `yaml:"strides,flow"`
	Padding          Padding   `yaml:"padding,omitempty"`
	PPE              *PPE      `yaml:"ppe,omitempty"`
	Segmented        bool      `yaml:"segmented,omitempty"`
	OutChannelOffset int       `yaml:"out_channel_offset,omitempty"`
	Variants         []Variant `yaml:"variants"`
}

// PPE describes post-processing.
type PPE struct {
	Mode       string `yaml:"mode"`
	ClampLow   int32  `yaml:"clamp_low,omitempty"`
	ClampHigh  int32  `yaml:"clamp_high,omitempty"`
	LReluMult  int32  `yaml:"lrelu_mult,omitempty"`
	LReluShift uint8  `yaml:"lrelu_shift,omitempty"`
}

// Variant is one DPU workload.
type Variant struct {
	Start   [3]int  `yaml:"start,flow"`
	End     [3]int  `yaml:"end,flow"`
	Pad     Padding `yaml:"pad,omitempty"`
	MPE     string  `yaml:"mpe"`
	Cluster int     `yaml:"cluster"`
}

// Kernel describes a software kernel task.
type Kernel struct {
	Entry           string   `yaml:"entry"`
	Inputs          []Buffer `yaml:"inputs,omitempty"`
	Outputs         []Buffer `yaml:"outputs,omitempty"`
	Args            []Arg    `yaml:"args,omitempty"`
	Instances       []int    `yaml:"instances,flow"`
	ParamBufferSize int      `yaml:"param_buffer_size,omitempty"`
}

// Arg is a scalar kernel argument. Exactly one field is set.
type Arg struct {
	Int   *int64   `yaml:"int,omitempty"`
	Float *float32 `yaml:"float,omitempty"`
}

// Order is a dims order written either as a layout name or as a permutation.
type Order tensor.DimsOrder

var orderNames = []struct {
	name  string
	order tensor.DimsOrder
}{
	{"C", tensor.OrderC},
	{"NC", tensor.OrderNC},
	{"CHW", tensor.OrderCHW},
	{"HWC", tensor.OrderHWC},
	{"NCHW", tensor.OrderNCHW},
	{"NHWC", tensor.OrderNHWC},
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Order) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		for _, e := range orderNames {
			if strings.EqualFold(e.name, n.Value) {
				*o = Order(e.order.Clone())
				return nil
			}
		}
		return fmt.Errorf("line %d: unknown dims order %q", n.Line, n.Value)
	case yaml.SequenceNode:
		var perm []int
		if err := n.Decode(&perm); err != nil {
			return err
		}
		*o = Order(perm)
		return nil
	default:
		return fmt.Errorf("line %d: dims order must be a name or a permutation", n.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (o Order) MarshalYAML() (any, error) {
	for _, e := range orderNames {
		if tensor.DimsOrder(o).Equal(e.order) {
			return e.name, nil
		}
	}
	return []int(o), nil
}
