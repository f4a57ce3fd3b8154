// Package hclgraph builds node graphs from HCL descriptions.
//
//	geometry {
//	  view_direction = [0, 0, 1]
//	}
//	node "tint" {
//	  kind   = "Vector3"
//	  values = [1, 0.5, 0.25]
//	}
//	node "rim" {
//	  kind = "Fresnel"
//	}
//	node "color" {
//	  kind   = "Multiply"
//	  inputs = ["tint", "rim"]
//	}
//	output "fragment" {
//	  from = "color"
//	}
//
// Expressions may use the constants pi and e and the functions abs, min, max,
// floor and ceil.
package hclgraph

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/soypat/fnode"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// File is the decoded form of a graph description.
type File struct {
	Geometry *Geometry `hcl:"geometry,block"`
	Nodes    []Node    `hcl:"node,block"`
	Outputs  []Output  `hcl:"output,block"`
}

// Node declares a graph node. Inputs name other nodes and are linked in order.
type Node struct {
	Name     string    `hcl:"name,label"`
	Kind     string    `hcl:"kind"`
	Values   []float64 `hcl:"values,optional"`
	Inputs   []string  `hcl:"inputs,optional"`
	Position []float64 `hcl:"position,optional"`

	Remain hcl.Body `hcl:",remain"`
}

// Output connects a node to the "vertex" or "fragment" stage sink.
type Output struct {
	Stage string `hcl:"stage,label"`
	From  string `hcl:"from"`

	Remain hcl.Body `hcl:",remain"`
}

// Geometry holds overrides of the externally supplied geometry inputs.
// Omitted attributes keep their current value.
type Geometry struct {
	Position      []float64 `hcl:"position,optional"`
	Normal        []float64 `hcl:"normal,optional"`
	ViewDirection []float64 `hcl:"view_direction,optional"`
	Fresnel       *float64  `hcl:"fresnel,optional"`
	MVP           []float64 `hcl:"mvp,optional"`
}

// Apply writes the overrides of geom into in.
func (geom *Geometry) Apply(in *fnode.GeometryInputs) error {
	var err error
	vec := func(name string, v []float64, dst *ms3.Vec) {
		if v == nil || err != nil {
			return
		} else if len(v) != 3 {
			err = fmt.Errorf("geometry %s needs 3 values, got %d", name, len(v))
			return
		}
		*dst = ms3.Vec{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
	}
	vec("position", geom.Position, &in.Position)
	vec("normal", geom.Normal, &in.Normal)
	vec("view_direction", geom.ViewDirection, &in.ViewDirection)
	if err != nil {
		return err
	}
	if geom.Fresnel != nil {
		in.Fresnel = float32(*geom.Fresnel)
	}
	if geom.MVP != nil {
		if len(geom.MVP) != 16 {
			return fmt.Errorf("geometry mvp needs 16 values, got %d", len(geom.MVP))
		}
		for i, v := range geom.MVP {
			in.MVP[i] = float32(v)
		}
	}
	return nil
}

// EvalContext returns the context graph description expressions are evaluated in.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi": cty.NumberFloatVal(3.14159265358979323846),
			"e":  cty.NumberFloatVal(2.71828182845904523536),
		},
		Functions: map[string]function.Function{
			"abs":   stdlib.AbsoluteFunc,
			"min":   stdlib.MinFunc,
			"max":   stdlib.MaxFunc,
			"floor": stdlib.FloorFunc,
			"ceil":  stdlib.CeilFunc,
		},
	}
}

// Decode parses an HCL graph description without building the graph.
func Decode(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	var file File
	diags = gohcl.DecodeBody(f.Body, EvalContext(), &file)
	if diags.HasErrors() {
		return nil, diags
	}
	return &file, nil
}

// Parse decodes an HCL graph description and builds the graph it describes.
// The returned graph is evaluated. Non-fatal evaluation problems do not fail
// the build and are reported again by the graph's next [fnode.Graph.Evaluate].
func Parse(src []byte, filename string, cfg fnode.Config) (*fnode.Graph, error) {
	file, err := Decode(src, filename)
	if err != nil {
		return nil, err
	}
	return file.Build(cfg)
}

// ParseFile reads and parses the graph description at path.
func ParseFile(fs afero.Fs, path string, cfg fnode.Config) (*fnode.Graph, error) {
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Parse(src, path, cfg)
}

// Build creates a new graph holding the nodes and links of the description.
// Nodes are created in declaration order so their IDs follow the file.
func (file *File) Build(cfg fnode.Config) (*fnode.Graph, error) {
	g := fnode.New(cfg)
	b := builder{
		g:     g,
		ids:   make(map[string]fnode.NodeID, len(file.Nodes)),
		decls: make(map[string]*Node, len(file.Nodes)),
		state: make(map[string]linkState, len(file.Nodes)),
	}
	if file.Geometry != nil {
		in := g.GeometryInputs()
		if err := file.Geometry.Apply(&in); err != nil {
			return nil, err
		}
		g.SetGeometryInputs(in)
	}
	var diags hcl.Diagnostics
	for i := range file.Nodes {
		diags = append(diags, unsupported(file.Nodes[i].Remain)...)
		diags = append(diags, b.addNode(&file.Nodes[i])...)
	}
	for i := range file.Outputs {
		diags = append(diags, unsupported(file.Outputs[i].Remain)...)
	}
	if diags.HasErrors() {
		return nil, diags
	}
	if err := g.Evaluate(); fnode.IsFatal(err) {
		return nil, err
	}
	for i := range file.Nodes {
		diags = append(diags, b.linkInputs(&file.Nodes[i])...)
	}
	for i := range file.Outputs {
		diags = append(diags, b.linkOutput(&file.Outputs[i])...)
	}
	if diags.HasErrors() {
		return nil, diags
	}
	g.Logger().Debug("graph description built", "nodes", len(file.Nodes), "lines", len(g.Lines()))
	return g, nil
}

type linkState uint8

const (
	_ linkState = iota
	linking
	linked
)

type builder struct {
	g     *fnode.Graph
	ids   map[string]fnode.NodeID
	decls map[string]*Node
	state map[string]linkState
}

func (b *builder) addNode(n *Node) hcl.Diagnostics {
	if prev, ok := b.decls[n.Name]; ok {
		return diagf(declRange(n.Remain), "Duplicate node", "Node %q was already declared at %s.", n.Name, declRange(prev.Remain))
	}
	kind, err := fnode.ParseKind(n.Kind)
	if err != nil {
		return diagf(declRange(n.Remain), "Invalid node kind", "%s.", err)
	}
	id, err := b.g.AddNode(kind)
	if err != nil {
		return diagf(declRange(n.Remain), "Can not add node", "%s.", err)
	}
	b.ids[n.Name] = id
	b.decls[n.Name] = n
	if n.Values != nil {
		values := make([]float32, len(n.Values))
		for i, v := range n.Values {
			values[i] = float32(v)
		}
		if err := b.g.SetValues(id, values...); err != nil {
			return diagf(declRange(n.Remain), "Invalid node values", "%s.", err)
		}
	}
	if n.Position != nil {
		if len(n.Position) != 2 {
			return diagf(declRange(n.Remain), "Invalid node position", "Position needs 2 values, got %d.", len(n.Position))
		}
		b.g.SetPosition(id, ms2.Vec{X: float32(n.Position[0]), Y: float32(n.Position[1])})
	}
	return nil
}

// linkInputs links the inputs of n after linking the inputs of every node
// upstream of it so link validation sees final output widths.
func (b *builder) linkInputs(n *Node) hcl.Diagnostics {
	switch b.state[n.Name] {
	case linked:
		return nil
	case linking:
		return diagf(declRange(n.Remain), "Dependency cycle", "Node %q depends on itself.", n.Name)
	}
	b.state[n.Name] = linking
	for _, in := range n.Inputs {
		src, ok := b.decls[in]
		if !ok {
			return diagf(declRange(n.Remain), "Unknown input", "Node %q has undeclared input %q.", n.Name, in)
		}
		if diags := b.linkInputs(src); diags.HasErrors() {
			return diags
		}
		if _, err := b.g.Link(b.ids[in], b.ids[n.Name]); err != nil {
			return diagf(declRange(n.Remain), "Link refused", "%s.", err)
		}
	}
	b.state[n.Name] = linked
	if err := b.g.Evaluate(); fnode.IsFatal(err) {
		return diagf(declRange(n.Remain), "Evaluation failed", "%s.", err)
	}
	return nil
}

func (b *builder) linkOutput(out *Output) hcl.Diagnostics {
	var sink fnode.NodeID
	switch out.Stage {
	case "vertex":
		sink = b.g.VertexSink()
	case "fragment":
		sink = b.g.FragmentSink()
	default:
		return diagf(declRange(out.Remain), "Invalid output stage", "Stage must be \"vertex\" or \"fragment\", got %q.", out.Stage)
	}
	id, ok := b.ids[out.From]
	if !ok {
		return diagf(declRange(out.Remain), "Unknown output source", "Node %q is not declared.", out.From)
	}
	if len(b.g.Inputs(sink)) > 0 {
		return diagf(declRange(out.Remain), "Duplicate output", "The %s stage output is already connected.", out.Stage)
	}
	if _, err := b.g.Link(id, sink); err != nil {
		return diagf(declRange(out.Remain), "Link refused", "%s.", err)
	}
	return nil
}

// declRange returns the source range of the block holding body.
func declRange(body hcl.Body) hcl.Range {
	if body == nil {
		return hcl.Range{}
	}
	return body.MissingItemRange()
}

// unsupported reports attributes of a block left over after decoding.
func unsupported(body hcl.Body) hcl.Diagnostics {
	if body == nil {
		return nil
	}
	attrs, diags := body.JustAttributes()
	for name, attr := range attrs {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported argument",
			Detail:   fmt.Sprintf("An argument named %q is not expected here.", name),
			Subject:  attr.NameRange.Ptr(),
		})
	}
	return diags
}

func diagf(rng hcl.Range, summary, format string, args ...any) hcl.Diagnostics {
	return hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  rng.Ptr(),
	}}
}

// IsLinkRefused reports whether err was caused by a link the graph refused.
func IsLinkRefused(err error) bool {
	var diags hcl.Diagnostics
	if !errors.As(err, &diags) {
		return false
	}
	for _, d := range diags {
		if d.Summary == "Link refused" {
			return true
		}
	}
	return false
}
