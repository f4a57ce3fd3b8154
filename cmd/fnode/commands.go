package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/soypat/fnode"
	"github.com/soypat/fnode/fnodeaux"
	"github.com/soypat/fnode/glbuild"
	"github.com/soypat/fnode/gleval"
	"github.com/soypat/fnode/glrender"
	"github.com/soypat/fnode/snapshot"
	"github.com/spf13/afero"
)

// CompileCommand generates the stage sources and snapshot of a graph.
type CompileCommand struct {
	Meta
}

func (c *CompileCommand) Run(args []string) int {
	var outDir, diagram string
	var gpu bool
	f := c.flagSet("compile", c.Help)
	f.StringVar(&outDir, "out", "", "Output directory.")
	f.StringVar(&diagram, "diagram", "", "Also write a PNG diagram to this file.")
	f.BoolVar(&gpu, "gpu", false, "Compile the sources with the local OpenGL driver before writing.")
	if err := f.Parse(args); err != nil {
		return 1
	}
	path, ok := graphArg(f)
	if !ok || !c.prepare() {
		c.Ui.Error(c.Help())
		return 1
	}
	g, err := c.loadGraph(path)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	cfg := c.config.compileConfig(c.Fs, c.Logger.Named("compile"))
	if outDir != "" {
		cfg.OutputDir = outDir
	}
	if diagram != "" {
		cfg.DiagramFile = diagram
	}
	cfg.GPUCheck = gpu
	result, err := fnodeaux.Compile(g, cfg)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	for _, w := range result.Warnings {
		c.Ui.Warn(w.Error())
	}
	for _, file := range result.Files {
		c.Ui.Output("wrote " + file)
	}
	return 0
}

func (c *CompileCommand) Synopsis() string {
	return "Generate shader sources from a graph"
}

func (c *CompileCommand) Help() string {
	return strings.TrimSpace(`
Usage: fnode compile [options] [GRAPH]

  Evaluates the graph and writes the vertex and fragment stage sources
  together with a snapshot of the graph. GRAPH is a snapshot file or an
  .hcl graph description and defaults to the configured snapshot.
  Either every output file is written or none is.

Options:

  -config=path    Project configuration. Defaults to fnode.hcl if present.

  -out=dir        Output directory. Overrides output_dir.

  -diagram=path   Also write a PNG diagram of the graph.

  -gpu            Compile the sources with the local OpenGL driver before
                  writing any file.
`)
}

// EvalCommand prints the values of every node of a graph.
type EvalCommand struct {
	Meta
}

func (c *EvalCommand) Run(args []string) int {
	f := c.flagSet("eval", c.Help)
	if err := f.Parse(args); err != nil {
		return 1
	}
	path, ok := graphArg(f)
	if !ok || !c.prepare() {
		c.Ui.Error(c.Help())
		return 1
	}
	g, err := c.loadGraph(path)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(formatValues(g))
	return 0
}

func formatValues(g *fnode.Graph) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tINPUTS\tVALUES")
	for _, n := range g.Nodes() {
		inputs := make([]string, 0, fnode.MaxInputs)
		for _, id := range g.Inputs(n.ID()) {
			inputs = append(inputs, fmt.Sprint(id))
		}
		values := make([]string, n.Width())
		for i := range values {
			values[i] = n.Text(i)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.ID(), n.Kind(), strings.Join(inputs, ","), strings.Join(values, " "))
	}
	tw.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

func (c *EvalCommand) Synopsis() string {
	return "Print the values of every node"
}

func (c *EvalCommand) Help() string {
	return strings.TrimSpace(`
Usage: fnode eval [options] [GRAPH]

  Evaluates the graph and prints the inputs and output values of each node.

Options:

  -config=path    Project configuration. Defaults to fnode.hcl if present.
`)
}

// RenderCommand draws a graph diagram to a PNG file.
type RenderCommand struct {
	Meta
}

func (c *RenderCommand) Run(args []string) int {
	var out string
	var cfg glrender.DiagramConfig
	var scale float64
	f := c.flagSet("render", c.Help)
	f.StringVar(&out, "o", "graph.png", "Output PNG file.")
	f.Float64Var(&scale, "scale", 1, "Pixels per canvas unit.")
	f.Float64Var(&cfg.FontSize, "font-size", 12, "Label font size in points.")
	if err := f.Parse(args); err != nil {
		return 1
	}
	path, ok := graphArg(f)
	if !ok || !c.prepare() {
		c.Ui.Error(c.Help())
		return 1
	}
	g, err := c.loadGraph(path)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	cfg.Scale = float32(scale)
	dr, err := glrender.NewDiagramRenderer(cfg)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	img := image.NewRGBA(dr.Bounds(g))
	err = dr.Render(img, g)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	var buf bytes.Buffer
	err = png.Encode(&buf, img)
	if err == nil {
		err = afero.WriteFile(c.Fs, out, buf.Bytes(), 0o644)
	}
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("wrote %s (%dx%d)", out, img.Bounds().Dx(), img.Bounds().Dy()))
	return 0
}

func (c *RenderCommand) Synopsis() string {
	return "Draw a diagram of a graph"
}

func (c *RenderCommand) Help() string {
	return strings.TrimSpace(`
Usage: fnode render [options] [GRAPH]

  Draws every node at its canvas position along with its links and values.

Options:

  -config=path    Project configuration. Defaults to fnode.hcl if present.

  -o=path         Output PNG file. Defaults to graph.png.

  -scale=1        Pixels per canvas unit.

  -font-size=12   Label font size in points.
`)
}

// CheckCommand compiles the generated sources with the local OpenGL driver.
type CheckCommand struct {
	Meta
}

func (c *CheckCommand) Run(args []string) int {
	f := c.flagSet("check", c.Help)
	if err := f.Parse(args); err != nil {
		return 1
	}
	path, ok := graphArg(f)
	if !ok || !c.prepare() {
		c.Ui.Error(c.Help())
		return 1
	}
	g, err := c.loadGraph(path)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	vertex, fragment, err := glbuild.NewDefaultProgrammer().Compile(g)
	if fnode.IsFatal(err) {
		c.Ui.Error(err.Error())
		return 1
	}
	for _, w := range fnode.Warnings(err) {
		c.Ui.Warn(w.Error())
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	terminate, err := gleval.InitHiddenContext()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	defer terminate()
	c.Ui.Info(gleval.Driver().String())
	err = gleval.Check(vertex, fragment)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output("ok")
	return 0
}

func (c *CheckCommand) Synopsis() string {
	return "Compile generated sources with the OpenGL driver"
}

func (c *CheckCommand) Help() string {
	return strings.TrimSpace(`
Usage: fnode check [options] [GRAPH]

  Generates the stage sources and compiles them with the local OpenGL
  driver without writing any file. Requires a display.

Options:

  -config=path    Project configuration. Defaults to fnode.hcl if present.
`)
}

// FmtCommand rewrites a graph as a snapshot.
type FmtCommand struct {
	Meta
}

func (c *FmtCommand) Run(args []string) int {
	var out string
	var align, prune bool
	f := c.flagSet("fmt", c.Help)
	f.StringVar(&out, "o", "", "Output snapshot file.")
	f.BoolVar(&align, "align", false, "Snap every node to the grid.")
	f.BoolVar(&prune, "prune", false, "Delete nodes without links.")
	if err := f.Parse(args); err != nil {
		return 1
	}
	path, ok := graphArg(f)
	if !ok || !c.prepare() {
		c.Ui.Error(c.Help())
		return 1
	}
	g, err := c.loadGraph(path)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if prune {
		n := g.ClearUnused()
		c.Ui.Info(fmt.Sprintf("removed %d unused nodes", n))
	}
	if align {
		for _, n := range g.Nodes() {
			g.AlignNode(n.ID())
		}
	}
	if out == "" {
		out = c.config.Snapshot
	}
	err = snapshot.Save(c.Fs, out, g)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output("wrote " + out)
	return 0
}

func (c *FmtCommand) Synopsis() string {
	return "Rewrite a graph as a snapshot"
}

func (c *FmtCommand) Help() string {
	return strings.TrimSpace(`
Usage: fnode fmt [options] [GRAPH]

  Reads a snapshot or .hcl graph description and writes it back as a
  snapshot with node IDs compacted.

Options:

  -config=path    Project configuration. Defaults to fnode.hcl if present.

  -o=path         Output snapshot. Defaults to the configured snapshot.

  -align          Snap every node to the configured grid.

  -prune          Delete nodes that have no links.
`)
}
