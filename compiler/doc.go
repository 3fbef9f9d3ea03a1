// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package compiler provides the public API of the npusched scheduling core.
//
// A graph is an ordered list of barrier declarations and tasks. Compiling it
// produces one strictly ordered queue per hardware engine, finalized barrier
// counts and a binary artifact the runtime can load:
//
//	g, err := compiler.LoadGraph("net.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	desc, _ := compiler.Preset("VPUX37XX")
//
//	res, err := compiler.Compile(ctx, g, desc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("net.blob", res.Artifact, 0o644)
//
// Decode reverses the encoding and rebuilds a graph whose re-compilation yields the
// same queues and barrier counts.
//
// Errors are *Error values classified by code. Use errors.Is with the exported
// sentinels:
//
//	if errors.Is(err, compiler.ErrMalformedGraph) {
//	    ...
//	}
package compiler
