package main

import (
	"errors"
	"flag"
	"io"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/soypat/fnode"
	"github.com/soypat/fnode/hclgraph"
	"github.com/soypat/fnode/snapshot"
	"github.com/spf13/afero"
)

// Meta holds the state shared by all commands.
type Meta struct {
	Ui     cli.Ui
	Fs     afero.Fs
	Logger hclog.Logger

	configPath string
	config     Config
}

// flagSet returns a flag set with the options common to every command.
func (m *Meta) flagSet(name string, help func() string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.Usage = func() { m.Ui.Error(help()) }
	f.StringVar(&m.configPath, "config", "", "Project configuration file.")
	return f
}

// prepare loads the project configuration after flags have been parsed.
func (m *Meta) prepare() bool {
	path, required := m.configPath, true
	if path == "" {
		path, required = defaultConfigFile, false
	}
	cfg, err := loadConfig(m.Fs, path, required)
	if err != nil {
		m.Ui.Error("loading configuration: " + err.Error())
		return false
	}
	m.config = cfg
	m.Logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	return true
}

// loadGraph reads the graph at path, or the configured snapshot if path is empty.
// Files ending in .hcl are read as graph descriptions, anything else as a snapshot.
func (m *Meta) loadGraph(path string) (*fnode.Graph, error) {
	if path == "" {
		path = m.config.Snapshot
	}
	gcfg := fnode.Config{
		Logger:      m.Logger.Named("graph"),
		GridSpacing: float32(m.config.GridSpacing),
	}
	var g *fnode.Graph
	var err error
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		g, err = hclgraph.ParseFile(m.Fs, path, gcfg)
		if err != nil {
			return nil, err
		}
	} else {
		g, err = snapshot.Load(m.Fs, path, gcfg)
		if errors.Is(err, fnode.ErrPersistenceFault) {
			return nil, err
		}
		for _, w := range fnode.Warnings(err) {
			m.Ui.Warn(w.Error())
		}
	}
	if m.config.Geometry != nil {
		in := g.GeometryInputs()
		if err := m.config.Geometry.Apply(&in); err != nil {
			return nil, err
		}
		g.SetGeometryInputs(in)
	}
	err = g.Evaluate()
	if fnode.IsFatal(err) {
		return nil, err
	}
	for _, w := range fnode.Warnings(err) {
		m.Ui.Warn(w.Error())
	}
	return g, nil
}

// graphArg returns the optional single positional argument.
func graphArg(f *flag.FlagSet) (string, bool) {
	switch f.NArg() {
	case 0:
		return "", true
	case 1:
		return f.Arg(0), true
	}
	return "", false
}
