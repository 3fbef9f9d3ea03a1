// Package main provides the npusched CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/blob"
	"github.com/born-ml/npusched/internal/compiler"
	"github.com/born-ml/npusched/internal/config"
	"github.com/born-ml/npusched/internal/graphio"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/parallel"
)

const version = "v0.1.0-dev"

// BlobExt is the extension of compiled artifacts.
const BlobExt = ".blob"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "npusched %s\n", version)
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "compile":
		err = compileCmd(args[1:], stdout, stderr)
	case "inspect":
		err = inspectCmd(args[1:], stdout)
	case "roundtrip":
		err = roundtripCmd(args[1:], stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "npusched - NPU task scheduler and artifact codec")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  compile    Compile graph descriptions into artifacts")
	fmt.Fprintln(w, "  inspect    Print the contents of an artifact")
	fmt.Fprintln(w, "  roundtrip  Decode, recompile and compare an artifact")
	fmt.Fprintln(w, "  version    Show version")
}

func compileCmd(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("compile", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "YAML configuration file")
	envFile := fs.String("env-file", "", "environment file (default .env when present)")
	outDir := fs.StringP("out-dir", "o", "", "output directory (default: next to each input)")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error, disabled)")
	fs.String("log-format", "console", "log format (console, json)")
	fs.String("arch", arch.VPUX37XX.String(), "target architecture preset")
	fs.Int("workers", 0, "programs compiled concurrently (0: one per CPU)")
	fs.Uint32("max-dma-planes", 0, "plane limit of strided DMA descriptors")
	fs.Int("param-buffer-size", 0, "default kernel parameter buffer size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		return errors.New("compile: no graph description given")
	}

	opts := []config.Option{config.WithFlags(fs)}
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	desc, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging).WithComponent("cli")

	outputs, errs := parallel.Map(inputs, func(_ int, path string) (string, error) {
		return compileFile(path, *outDir, desc, cfg, log)
	}, parallel.WithWorkers(cfg.Workers))

	var failed int
	for i, path := range inputs {
		if errs[i] != nil {
			failed++
			log.Error("compilation failed", errs[i], map[string]any{"file": path})
			continue
		}
		fmt.Fprintln(stdout, outputs[i])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d programs failed", failed, len(inputs))
	}
	return nil
}

func compileFile(path, outDir string, desc arch.Descriptor, cfg *config.Config, log *logging.Logger) (string, error) {
	g, err := graphio.Load(path)
	if err != nil {
		return "", err
	}
	flog := log.WithFields(map[string]any{"file": path})
	res, err := compiler.Compile(context.Background(), g, desc,
		compiler.WithLogger(flog),
		compiler.WithLoweringOptions(cfg.LoweringOptions(flog)...),
	)
	if err != nil {
		return "", err
	}
	for _, d := range res.Diagnostics {
		flog.Warn(d.Message, map[string]any{"code": string(d.Code), logging.FieldBarrier: d.Barrier})
	}

	out := artifactPath(path, outDir)
	if err := os.WriteFile(out, res.Artifact, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}

func artifactPath(path, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + BlobExt
	if outDir == "" {
		return filepath.Join(filepath.Dir(path), base)
	}
	return filepath.Join(outDir, base)
}

// inspection is the printable overview of an artifact.
type inspection struct {
	Name        string   `yaml:"name"`
	ID          string   `yaml:"id"`
	Version     string   `yaml:"version"`
	Arch        string   `yaml:"arch"`
	Inputs      []string `yaml:"inputs,omitempty"`
	Outputs     []string `yaml:"outputs,omitempty"`
	DMA         []int    `yaml:"dma"`
	Invariants  int      `yaml:"invariants"`
	Variants    int      `yaml:"variants"`
	Ranges      int      `yaml:"kernel_ranges"`
	Invocations int      `yaml:"kernel_invocations"`
	Barriers    int      `yaml:"barriers"`
	Weights     int      `yaml:"weights_bytes"`
}

func inspectCmd(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	asGraph := fs.Bool("graph", false, "print the decoded graph description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect: expected one artifact")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := blob.DecodeSchedule(data)
	if err != nil {
		return err
	}

	if *asGraph {
		g, err := c.Graph()
		if err != nil {
			return err
		}
		out, err := graphio.Marshal(graphio.FromGraph(g))
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	h := c.Header
	info := inspection{
		Name:        h.Name,
		ID:          h.ID.String(),
		Version:     fmt.Sprintf("%d.%d", h.Major, h.Minor),
		Arch:        h.Arch.Kind.String(),
		DMA:         c.Counts.DMA,
		Invariants:  c.Counts.Invariants,
		Variants:    c.Counts.Variants,
		Ranges:      c.Counts.Ranges,
		Invocations: c.Counts.Invocations,
		Barriers:    c.Counts.Barriers,
		Weights:     len(c.Weights),
	}
	for _, in := range h.Inputs {
		info.Inputs = append(info.Inputs, in.Name)
	}
	for _, o := range h.Outputs {
		info.Outputs = append(info.Outputs, o.Name)
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(info); err != nil {
		return err
	}
	return enc.Close()
}

func roundtripCmd(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("roundtrip", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("roundtrip: expected one artifact")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := blob.DecodeSchedule(data)
	if err != nil {
		return err
	}
	g, err := c.Graph()
	if err != nil {
		return err
	}
	res, err := compiler.Compile(context.Background(), g, c.Header.Arch)
	if err != nil {
		return err
	}
	if string(res.Artifact) != string(data) {
		return fmt.Errorf("roundtrip: re-encoded artifact differs (%d bytes, was %d)", len(res.Artifact), len(data))
	}
	fmt.Fprintf(stdout, "%s: identical (%d bytes)\n", fs.Arg(0), len(data))
	return nil
}
