package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/soypat/fnode"
	"github.com/soypat/fnode/fnodeaux"
	"github.com/soypat/fnode/hclgraph"
	"github.com/spf13/afero"
)

const defaultConfigFile = "fnode.hcl"

// Config is the project configuration read from fnode.hcl.
//
//	snapshot      = "graph.fnode"
//	output_dir    = "build"
//	log_level     = "debug"
//	grid_spacing  = 20
//	geometry {
//	  view_direction = [0, 0, -1]
//	}
type Config struct {
	Snapshot     string  `hcl:"snapshot,optional"`
	OutputDir    string  `hcl:"output_dir,optional"`
	VertexFile   string  `hcl:"vertex_file,optional"`
	FragmentFile string  `hcl:"fragment_file,optional"`
	DiagramFile  string  `hcl:"diagram_file,optional"`
	LogLevel     string  `hcl:"log_level,optional"`
	GridSpacing  float64 `hcl:"grid_spacing,optional"`

	Geometry *hclgraph.Geometry `hcl:"geometry,block"`
}

func defaultConfig() Config {
	return Config{
		Snapshot:     fnodeaux.DefaultSnapshotFile,
		VertexFile:   fnodeaux.DefaultVertexFile,
		FragmentFile: fnodeaux.DefaultFragmentFile,
		LogLevel:     "info",
		GridSpacing:  fnode.DefaultGridSpacing,
	}
}

// loadConfig reads the configuration at path on top of the defaults.
// A missing file is only an error when required is set.
func loadConfig(fsys afero.Fs, path string, required bool) (Config, error) {
	cfg := defaultConfig()
	src, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	} else if err != nil {
		return cfg, err
	}
	f, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return cfg, diags
	}
	diags = gohcl.DecodeBody(f.Body, hclgraph.EvalContext(), &cfg)
	if diags.HasErrors() {
		return cfg, diags
	}
	if cfg.GridSpacing <= 0 {
		return cfg, fmt.Errorf("%s: grid_spacing must be positive", path)
	}
	if hclog.LevelFromString(cfg.LogLevel) == hclog.NoLevel {
		return cfg, fmt.Errorf("%s: unknown log_level %q", path, cfg.LogLevel)
	}
	return cfg, nil
}

func (cfg *Config) compileConfig(fsys afero.Fs, logger hclog.Logger) fnodeaux.CompileConfig {
	return fnodeaux.CompileConfig{
		Fs:           fsys,
		OutputDir:    cfg.OutputDir,
		VertexFile:   cfg.VertexFile,
		FragmentFile: cfg.FragmentFile,
		SnapshotFile: cfg.Snapshot,
		DiagramFile:  cfg.DiagramFile,
		Logger:       logger,
	}
}
