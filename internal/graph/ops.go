package graph

import (
	"fmt"
	"strings"
)

// Family groups logical operations by the engine class that executes them.
type Family uint8

// Operation families.
const (
	FamilyCopy Family = iota + 1
	FamilyCompute
	FamilyKernel
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyCopy:
		return "copy"
	case FamilyCompute:
		return "compute"
	case FamilyKernel:
		return "kernel"
	default:
		return "unknown"
	}
}

// Op is a logical operation inside a task. The set of implementations is closed:
// *CopyOp, *ComputeOp and *KernelOp.
type Op interface {
	Family() Family
	validate() error
}

// CopyFlavor selects the DMA variant of a copy.
type CopyFlavor uint8

// Copy flavors.
const (
	CopyPlain CopyFlavor = iota
	CopyCompressed
	CopyPermute
	CopyUpsampling
	CopyPerAxisTile
	CopyExpand
	CopySpaceToDepth
	CopyDepthToSpace
)

var flavorNames = [...]string{
	CopyPlain:        "plain",
	CopyCompressed:   "compressed",
	CopyPermute:      "permute",
	CopyUpsampling:   "upsampling",
	CopyPerAxisTile:  "per-axis-tile",
	CopyExpand:       "expand",
	CopySpaceToDepth: "space-to-depth",
	CopyDepthToSpace: "depth-to-space",
}

// String returns the flavor name.
func (f CopyFlavor) String() string {
	if int(f) < len(flavorNames) {
		return flavorNames[f]
	}
	return "unknown"
}

// Valid reports whether f is a known flavor.
func (f CopyFlavor) Valid() bool { return int(f) < len(flavorNames) }

// ParseCopyFlavor converts a flavor name into a CopyFlavor.
func ParseCopyFlavor(name string) (CopyFlavor, error) {
	if name == "" {
		return CopyPlain, nil
	}
	for i, n := range flavorNames {
		if n == strings.ToLower(name) {
			return CopyFlavor(i), nil
		}
	}
	return CopyPlain, fmt.Errorf("unknown copy flavor %q", name)
}

// DMADescriptor is the strided transfer pattern of a DMA.
type DMADescriptor struct {
	Len            uint32
	SrcWidth       uint32
	SrcStride      uint32
	SrcPlaneStride uint32
	DstWidth       uint32
	DstStride      uint32
	DstPlaneStride uint32
	NumPlanes      uint32
}

// CopyOp moves data between two buffers on a DMA port.
type CopyOp struct {
	Flavor     CopyFlavor
	Port       int
	Input      BufferRef
	Output     BufferRef
	OutOfOrder bool
	Critical   bool
	Descriptor *DMADescriptor
}

// Family implements Op.
func (*CopyOp) Family() Family { return FamilyCopy }

func (c *CopyOp) validate() error {
	if !c.Flavor.Valid() {
		return fmt.Errorf("unknown copy flavor %d", c.Flavor)
	}
	if c.Port < 0 {
		return fmt.Errorf("negative DMA port %d", c.Port)
	}
	if err := c.Input.Validate(); err != nil {
		return err
	}
	return c.Output.Validate()
}

// TaskType is the compute task class executed by the cluster array.
type TaskType uint8

// Compute task types.
const (
	TaskConv TaskType = iota
	TaskDepthwiseConv
	TaskMaxPool
	TaskAvgPool
	TaskEltwise
	TaskChannelMajorConv
)

var taskTypeNames = [...]string{
	TaskConv:             "conv",
	TaskDepthwiseConv:    "dwconv",
	TaskMaxPool:          "maxpool",
	TaskAvgPool:          "avepool",
	TaskEltwise:          "eltwise",
	TaskChannelMajorConv: "cmconv",
}

// String returns the task type name.
func (t TaskType) String() string {
	if int(t) < len(taskTypeNames) {
		return taskTypeNames[t]
	}
	return "unknown"
}

// ParseTaskType converts a task type name into a TaskType.
func ParseTaskType(name string) (TaskType, error) {
	for i, n := range taskTypeNames {
		if n == strings.ToLower(name) {
			return TaskType(i), nil
		}
	}
	return TaskConv, fmt.Errorf("unknown task type %q", name)
}

// MPEMode is the execution grid of a compute variant.
type MPEMode uint8

// MPE modes.
const (
	MPEVector MPEMode = iota
	MPEMatrix
	MPEVectorFP16
	MPECuboid16x16
	MPECuboid8x16
	MPECuboid4x16
	MPENop
)

var mpeNames = [...]string{
	MPEVector:      "vector",
	MPEMatrix:      "matrix",
	MPEVectorFP16:  "vector-fp16",
	MPECuboid16x16: "cuboid-16x16",
	MPECuboid8x16:  "cuboid-8x16",
	MPECuboid4x16:  "cuboid-4x16",
	MPENop:         "nop",
}

// String returns the mode name.
func (m MPEMode) String() string {
	if int(m) < len(mpeNames) {
		return mpeNames[m]
	}
	return "unknown"
}

// ParseMPEMode converts a mode name into an MPEMode.
func ParseMPEMode(name string) (MPEMode, error) {
	for i, n := range mpeNames {
		if n == strings.ToLower(name) {
			return MPEMode(i), nil
		}
	}
	return MPEVector, fmt.Errorf("unknown MPE mode %q", name)
}

// PPEMode is the post-processing applied to compute results.
type PPEMode uint8

// PPE modes.
const (
	PPENone PPEMode = iota
	PPEReLU
	PPEReLUX
	PPELeakyReLU
	PPEAdd
	PPEMult
)

var ppeNames = [...]string{
	PPENone:      "none",
	PPEReLU:      "relu",
	PPEReLUX:     "relux",
	PPELeakyReLU: "lrelu",
	PPEAdd:       "add",
	PPEMult:      "mult",
}

// String returns the mode name.
func (m PPEMode) String() string {
	if int(m) < len(ppeNames) {
		return ppeNames[m]
	}
	return "unknown"
}

// ParsePPEMode converts a mode name into a PPEMode.
func ParsePPEMode(name string) (PPEMode, error) {
	if name == "" {
		return PPENone, nil
	}
	for i, n := range ppeNames {
		if n == strings.ToLower(name) {
			return PPEMode(i), nil
		}
	}
	return PPENone, fmt.Errorf("unknown PPE mode %q", name)
}

// PPE configures post-processing.
type PPE struct {
	Mode       PPEMode
	ClampLow   int32
	ClampHigh  int32
	LReluMult  int32
	LReluShift uint8
}

// DPUTask is one workload split of a compute op.
type DPUTask struct {
	Start     [3]int
	End       [3]int
	Pad       Padding
	MPEMode   MPEMode
	ClusterID int
}

// ComputeOp runs on the cluster array and is split into one variant per DPU task.
type ComputeOp struct {
	TaskType         TaskType
	Input            BufferRef
	Weights          *BufferRef
	WeightTable      *BufferRef
	Output           BufferRef
	KernelSize       [2]int
	KernelStrides    [2]int
	KernelPadding    Padding
	PPE              PPE
	IsSegmented      bool
	OutChannelOffset int
	Variants         []DPUTask
}

// Family implements Op.
func (*ComputeOp) Family() Family { return FamilyCompute }

func (c *ComputeOp) validate() error {
	if len(c.Variants) == 0 {
		return fmt.Errorf("compute op %q has no variants", c.Output.Name)
	}
	for _, ref := range c.refs() {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	for i, v := range c.Variants {
		if v.ClusterID < 0 {
			return fmt.Errorf("variant %d has negative cluster id %d", i, v.ClusterID)
		}
		for axis := range v.Start {
			if v.End[axis] < v.Start[axis] {
				return fmt.Errorf("variant %d: end %v before start %v", i, v.End, v.Start)
			}
		}
	}
	return nil
}

func (c *ComputeOp) refs() []BufferRef {
	refs := []BufferRef{c.Input, c.Output}
	if c.Weights != nil {
		refs = append(refs, *c.Weights)
	}
	if c.WeightTable != nil {
		refs = append(refs, *c.WeightTable)
	}
	return refs
}

// KernelArg is a scalar kernel argument.
type KernelArg struct {
	Int     int64
	Float   float32
	IsFloat bool
}

// IntArg returns an integer argument.
func IntArg(v int64) KernelArg { return KernelArg{Int: v} }

// FloatArg returns a float argument.
func FloatArg(v float32) KernelArg { return KernelArg{Float: v, IsFloat: true} }

// KernelOp runs a software kernel on the auxiliary execution units.
type KernelOp struct {
	Entry   string
	Inputs  []BufferRef
	Outputs []BufferRef
	Args    []KernelArg
	// Instances holds the tile index of each scheduled instance.
	Instances []int
	// ParamBufferSize bounds the serialized parameter block of one instance.
	ParamBufferSize int
}

// Family implements Op.
func (*KernelOp) Family() Family { return FamilyKernel }

func (k *KernelOp) validate() error {
	if k.Entry == "" {
		return fmt.Errorf("kernel op has no entry")
	}
	if len(k.Instances) == 0 {
		return fmt.Errorf("kernel op %q has no instances", k.Entry)
	}
	if k.ParamBufferSize < 0 {
		return fmt.Errorf("kernel op %q has negative parameter buffer size", k.Entry)
	}
	for _, ref := range k.Inputs {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	for _, ref := range k.Outputs {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	return nil
}
