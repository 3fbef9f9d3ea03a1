// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package compiler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/compiler"
)

const convGraph = "../internal/graphio/testdata/conv.yaml"

func TestLoadCompileDecode(t *testing.T) {
	g, err := compiler.LoadGraph(convGraph)
	require.NoError(t, err)

	desc, err := compiler.Preset("VPUX37XX")
	require.NoError(t, err)

	log := compiler.NewLogger(compiler.LogConfig{Level: "disabled"})
	res, err := compiler.Compile(context.Background(), g, desc,
		compiler.WithLogger(log),
		compiler.WithMaxDMAPlanes(64),
	)
	require.NoError(t, err)
	assert.Equal(t, "conv-softmax", res.Schedule.Name())

	decoded, err := compiler.Decode(res.Artifact)
	require.NoError(t, err)
	assert.Equal(t, g.ID, decoded.ID)
	assert.Equal(t, g.NumTasks(), decoded.NumTasks())

	// Lowering the decoded graph reproduces the artifact.
	s, err := compiler.Lower(decoded, desc)
	require.NoError(t, err)
	again, err := compiler.Encode(s)
	require.NoError(t, err)
	assert.Equal(t, res.Artifact, again)
}

func TestAddTaskMalformed(t *testing.T) {
	g := compiler.NewGraph("bad")
	b := g.DeclareBarrier(0)
	err := g.AddTask(compiler.Task{
		Name: "empty",
		Wait: []compiler.BarrierID{b},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, compiler.ErrMalformedGraph))

	var cerr *compiler.Error
	assert.True(t, errors.As(err, &cerr))
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := compiler.Decode([]byte{0x01, 0x02})
	assert.True(t, errors.Is(err, compiler.ErrTruncatedOrCorruptInput))
}

func TestPresetUnknown(t *testing.T) {
	_, err := compiler.Preset("VPUX99XX")
	assert.Error(t, err)
}

func TestLowerPortOutOfRange(t *testing.T) {
	g := compiler.NewGraph("far")
	ref := func(name string, space compiler.MemorySpace) compiler.BufferRef {
		return compiler.BufferRef{Name: name, Shape: []int{1, 8}, DType: compiler.Float16, Space: space}
	}
	require.NoError(t, g.AddTask(compiler.Task{
		Name: "copy",
		Ops:  []compiler.Op{&compiler.CopyOp{Port: 7, Input: ref("a", compiler.StagingPool), Output: ref("b", compiler.ClusterScratch)}},
	}))

	desc, err := compiler.Preset("VPUX37XX")
	require.NoError(t, err)
	_, err = compiler.Lower(g, desc)
	assert.True(t, errors.Is(err, compiler.ErrMalformedGraph))
}
