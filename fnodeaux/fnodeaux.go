// Package fnodeaux wires the fnode packages into a single compile pipeline to
// get users going quickly. Applications with their own file layout or event
// loop will likely want to call the underlying packages directly.
package fnodeaux

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/soypat/fnode"
	"github.com/soypat/fnode/glbuild"
	"github.com/soypat/fnode/gleval"
	"github.com/soypat/fnode/glrender"
	"github.com/soypat/fnode/snapshot"
	"github.com/spf13/afero"
)

// Default output file names.
const (
	DefaultVertexFile   = "shader.vs"
	DefaultFragmentFile = "shader.fs"
	DefaultSnapshotFile = "graph.fnode"
)

// CompileConfig selects where and how [Compile] writes a graph's outputs.
type CompileConfig struct {
	// Fs is the filesystem outputs are written to. Nil means the OS filesystem.
	Fs afero.Fs
	// OutputDir is prepended to every relative output file name.
	OutputDir    string
	VertexFile   string
	FragmentFile string
	SnapshotFile string
	// DiagramFile, if set, receives a PNG diagram of the graph.
	DiagramFile string
	// Programmer generates the stage sources. Nil uses [glbuild.NewDefaultProgrammer].
	Programmer *glbuild.Programmer
	// Logger receives pipeline progress. Nil uses the graph's logger.
	Logger hclog.Logger
	// Silent disables all pipeline logging.
	Silent bool
	// GPUCheck compiles the generated sources with the local OpenGL driver
	// before anything is written. Requires CGo and a display.
	GPUCheck bool
}

// Result holds the outputs of a successful [Compile].
type Result struct {
	Vertex   []byte
	Fragment []byte
	Snapshot []byte
	// Files lists the written paths in the order they were committed.
	Files []string
	// Warnings holds non-fatal evaluation and code generation problems.
	Warnings []error
}

// Compile evaluates g, generates both stage sources and the graph snapshot and
// writes them all to the configured filesystem. Either every output is written
// or none is: files are staged next to their destination and only moved into
// place once all of them have been written successfully.
// Non-fatal problems such as an unconnected stage are returned in [Result.Warnings].
func Compile(g *fnode.Graph, cfg CompileConfig) (result Result, err error) {
	if g == nil {
		return result, errors.New("nil graph")
	}
	logger := cfg.Logger
	switch {
	case cfg.Silent:
		logger = hclog.NewNullLogger()
	case logger == nil:
		logger = g.Logger()
	}
	log := func(msg string, args ...any) {
		logger.Info(msg, args...)
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Programmer == nil {
		cfg.Programmer = glbuild.NewDefaultProgrammer()
	}

	watch := stopwatch()
	err = g.Evaluate()
	if fnode.IsFatal(err) {
		return Result{}, fmt.Errorf("evaluating graph: %w", err)
	}
	result.Warnings = append(result.Warnings, fnode.Warnings(err)...)
	log("evaluated graph", "nodes", g.Len(), "links", len(g.Lines()), "elapsed", watch())

	watch = stopwatch()
	result.Vertex, result.Fragment, err = cfg.Programmer.Compile(g)
	if fnode.IsFatal(err) {
		return Result{}, fmt.Errorf("generating shaders: %w", err)
	}
	result.Warnings = append(result.Warnings, fnode.Warnings(err)...)
	log("generated shaders", "vertex_bytes", len(result.Vertex), "fragment_bytes", len(result.Fragment), "elapsed", watch())

	var snap bytes.Buffer
	err = snapshot.Encode(&snap, g)
	if err != nil {
		return Result{}, fmt.Errorf("encoding snapshot: %w: %w", fnode.ErrPersistenceFault, err)
	}
	result.Snapshot = snap.Bytes()

	if cfg.GPUCheck {
		watch = stopwatch()
		err = checkGPU(result.Vertex, result.Fragment)
		if err != nil {
			return Result{}, err
		}
		log("driver accepted shaders", "elapsed", watch())
	}

	outputs := []output{
		{path: cfg.path(cfg.VertexFile, DefaultVertexFile), data: result.Vertex},
		{path: cfg.path(cfg.FragmentFile, DefaultFragmentFile), data: result.Fragment},
		{path: cfg.path(cfg.SnapshotFile, DefaultSnapshotFile), data: result.Snapshot},
	}
	if cfg.DiagramFile != "" {
		var diagram bytes.Buffer
		err = glrender.EncodePNG(&diagram, g)
		if err != nil {
			return Result{}, fmt.Errorf("rendering diagram: %w", err)
		}
		outputs = append(outputs, output{path: cfg.path(cfg.DiagramFile, ""), data: diagram.Bytes()})
	}

	watch = stopwatch()
	err = writeAll(cfg.Fs, outputs)
	if err != nil {
		return Result{}, err
	}
	for _, out := range outputs {
		result.Files = append(result.Files, out.path)
	}
	log("wrote outputs", "files", len(outputs), "elapsed", watch())
	for _, w := range result.Warnings {
		logger.Warn(w.Error())
	}
	return result, nil
}

func (cfg *CompileConfig) path(name, defaultName string) string {
	if name == "" {
		name = defaultName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.OutputDir, name)
}

type output struct {
	path string
	data []byte
}

// writeAll stages every output in a temporary file and renames them into place
// once all have been written. Existing outputs are moved aside while committing
// and restored if any output fails, so on error the previous file-set is intact.
func writeAll(fs afero.Fs, outputs []output) (err error) {
	var staged, committed, backups []string
	defer func() {
		if err == nil {
			for _, name := range backups {
				fs.Remove(name + ".bak")
			}
			return
		}
		for _, name := range committed {
			fs.Remove(name)
		}
		for _, name := range backups {
			fs.Rename(name+".bak", name)
		}
		for _, name := range staged {
			fs.Remove(name)
		}
	}()
	for _, out := range outputs {
		if dir := filepath.Dir(out.path); dir != "." {
			err = fs.MkdirAll(dir, 0o755)
			if err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
		}
		tmp := out.path + ".tmp"
		staged = append(staged, tmp)
		err = afero.WriteFile(fs, tmp, out.data, 0o644)
		if err != nil {
			return fmt.Errorf("writing %s: %w", out.path, err)
		}
	}
	for _, out := range outputs {
		var exists bool
		exists, err = afero.Exists(fs, out.path)
		if err != nil {
			return fmt.Errorf("committing %s: %w", out.path, err)
		}
		if exists {
			err = fs.Rename(out.path, out.path+".bak")
			if err != nil {
				return fmt.Errorf("committing %s: %w", out.path, err)
			}
			backups = append(backups, out.path)
		}
		err = fs.Rename(out.path+".tmp", out.path)
		if err != nil {
			return fmt.Errorf("committing %s: %w", out.path, err)
		}
		committed = append(committed, out.path)
	}
	return nil
}

func checkGPU(vertex, fragment []byte) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	terminate, err := gleval.InitHiddenContext()
	if err != nil {
		return fmt.Errorf("GPU check: %w", err)
	}
	defer terminate()
	return gleval.Check(vertex, fragment)
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
