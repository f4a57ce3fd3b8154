package glbuild

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/soypat/fnode"
	"github.com/soypat/fnode/glbuild/glsllib"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

const VersionStr = "#version 330\n"

// Literal text of the constants, with more digits than a float32 holds.
const (
	piLiteral = "3.14159265358979323846"
	eLiteral  = "2.71828182845904523536"
)

// Stage selects one of the two compiled outputs of a graph.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return "Stage(" + strconv.Itoa(int(s)) + ")"
}

// sink returns the ID of the graph node terminating the stage.
func (s Stage) sink(g *fnode.Graph) fnode.NodeID {
	if s == StageVertex {
		return g.VertexSink()
	}
	return g.FragmentSink()
}

// outputVar is the variable the stage result is assigned to.
func (s Stage) outputVar() string {
	if s == StageVertex {
		return "gl_Position"
	}
	return "finalColor"
}

// Programmer implements shader generation logic for a node graph.
// A Programmer may be reused but not shared between goroutines.
type Programmer struct {
	scratch []byte
	// visited holds nodes already declared in the stage being written.
	visited map[fnode.NodeID]bool
	// Indent is prepended to every statement of the main function.
	Indent string
}

// NewDefaultProgrammer returns a Programmer with four space indentation.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch: make([]byte, 0, 4096),
		visited: make(map[fnode.NodeID]bool),
		Indent:  "    ",
	}
}

// Compile generates the vertex and fragment stage sources of an evaluated graph.
// A stage whose sink has nothing connected compiles to an empty main function and
// the returned error wraps [fnode.ErrGraphIncomplete] for it. Both sources are
// returned whenever the error is not fatal (see [fnode.IsFatal]).
func (p *Programmer) Compile(g *fnode.Graph) (vertex, fragment []byte, err error) {
	var warnings *multierror.Error
	vertex, err = p.AppendStage(nil, g, StageVertex)
	if fnode.IsFatal(err) {
		return nil, nil, err
	}
	warnings = multierror.Append(warnings, err)
	fragment, err = p.AppendStage(nil, g, StageFragment)
	if fnode.IsFatal(err) {
		return nil, nil, err
	}
	warnings = multierror.Append(warnings, err)
	err = warnings.ErrorOrNil()
	if err != nil {
		g.Logger().Warn("shader compiled with warnings", "warnings", len(warnings.Errors))
	} else {
		g.Logger().Info("shader compiled", "vertex_bytes", len(vertex), "fragment_bytes", len(fragment))
	}
	return vertex, fragment, err
}

// WriteStage writes the complete source of a stage to w. It returns the
// number of bytes written. See [Programmer.AppendStage] for error semantics.
func (p *Programmer) WriteStage(w io.Writer, g *fnode.Graph, stage Stage) (int, error) {
	src, err := p.AppendStage(p.scratch[:0], g, stage)
	p.scratch = src[:0]
	if fnode.IsFatal(err) {
		return 0, err
	}
	n, werr := w.Write(src)
	if werr != nil {
		return n, werr
	} else if n != len(src) {
		return n, io.ErrShortWrite
	}
	return n, err
}

// AppendStage appends the complete source of a stage to dst. Nodes reachable from the
// stage sink are declared once each in dependency order, literals and constants are
// declared up front. If the stage can not be completed the main function is left
// empty and the returned error wraps [fnode.ErrGraphIncomplete].
func (p *Programmer) AppendStage(dst []byte, g *fnode.Graph, stage Stage) ([]byte, error) {
	if stage > StageFragment {
		return dst, fmt.Errorf("invalid stage %d", stage)
	}
	if p.visited == nil {
		p.visited = make(map[fnode.NodeID]bool)
	}
	if stage == StageVertex {
		dst = glsllib.AppendVertexHeader(dst)
	} else {
		dst = glsllib.AppendFragmentHeader(dst)
	}
	dst = append(dst, "\n// Constant values\n"...)
	dst = AppendConstantDecls(dst, g)
	dst = append(dst, "\nvoid main()\n{\n"...)
	bodyStart := len(dst)

	sink := stage.sink(g)
	inputs := g.Inputs(sink)
	if len(inputs) == 0 {
		g.Logger().Warn("stage sink unconnected", "stage", stage)
		return append(dst, "}\n"...), fmt.Errorf("%s stage output is not connected: %w", stage, fnode.ErrGraphIncomplete)
	}
	if stage == StageVertex {
		dst = glsllib.AppendVertexPassthrough(dst)
	}
	clear(p.visited)
	root := inputs[0]
	var err error
	dst, err = p.appendNode(dst, g, stage, root)
	if err != nil {
		if !fnode.IsFatal(err) {
			g.Logger().Warn("stage left empty", "stage", stage, "error", err)
		}
		return append(dst[:bodyStart], "}\n"...), fmt.Errorf("%s stage: %w", stage, err)
	}
	rootNode, _ := g.Node(root)
	dst = append(dst, '\n')
	dst = append(dst, p.Indent...)
	dst = appendOutputAssign(dst, stage, root, rootNode.Width())
	dst = append(dst, "}\n"...)
	return dst, nil
}

// appendNode declares node id after declaring every operator it depends on.
func (p *Programmer) appendNode(dst []byte, g *fnode.Graph, stage Stage, id fnode.NodeID) (_ []byte, err error) {
	if p.visited[id] {
		return dst, nil
	}
	n, ok := g.Node(id)
	if !ok {
		return dst, fmt.Errorf("reference to node %d: %w", id, fnode.ErrGraphCorruption)
	}
	switch n.Kind().Category() {
	case fnode.CategoryConstant, fnode.CategoryLiteral:
		return dst, nil // Declared as constants.
	case fnode.CategorySink:
		return dst, fmt.Errorf("%s used as input: %w", n, fnode.ErrGraphCorruption)
	}
	p.visited[id] = true
	inputs := g.Inputs(id)
	for _, in := range inputs {
		dst, err = p.appendNode(dst, g, stage, in)
		if err != nil {
			return dst, err
		}
	}
	width := n.Width()
	if width == 0 {
		return dst, fmt.Errorf("%s (%s) is missing inputs: %w", n, n.DisplayName(), fnode.ErrGraphIncomplete)
	}
	dst = append(dst, p.Indent...)
	dst = appendTypename(dst, width)
	dst = append(dst, ' ')
	dst = AppendNodeName(dst, id)
	dst = append(dst, " = "...)
	dst, err = appendExpr(dst, g, stage, n, inputs)
	if err != nil {
		return dst, err
	}
	dst = append(dst, ";\n"...)
	return dst, nil
}

// AppendNodeName appends the GLSL variable name of a node, i.e: node_07.
func AppendNodeName(b []byte, id fnode.NodeID) []byte {
	b = append(b, "node_"...)
	if id >= 0 && id < 10 {
		b = append(b, '0')
	}
	return strconv.AppendInt(b, int64(id), 10)
}

func appendTypename(b []byte, width int) []byte {
	switch width {
	case 1:
		return append(b, "float"...)
	case 2, 3, 4:
		b = append(b, "vec"...)
		return append(b, byte('0'+width))
	case 16:
		return append(b, "mat4"...)
	}
	panic("invalid output width " + strconv.Itoa(width))
}

// appendOutputAssign appends the statement writing the stage output from node id.
func appendOutputAssign(b []byte, stage Stage, id fnode.NodeID, width int) []byte {
	b = append(b, stage.outputVar()...)
	b = append(b, " = "...)
	switch width {
	case 1:
		b = append(b, "vec4("...)
		for i := 0; i < 3; i++ {
			b = AppendNodeName(b, id)
			b = append(b, ", "...)
		}
		b = append(b, "1.0)"...)
	case 2:
		b = append(b, "vec4("...)
		b = AppendNodeName(b, id)
		b = append(b, ".xy, 0.0, 1.0)"...)
	case 3:
		b = append(b, "vec4("...)
		b = AppendNodeName(b, id)
		b = append(b, ".xyz, 1.0)"...)
	case 16:
		// A matrix feeding the vertex output transforms the vertex position.
		b = AppendNodeName(b, id)
		b = append(b, "*vec4(vertexPosition, 1.0)"...)
	default:
		b = AppendNodeName(b, id)
	}
	return append(b, ";\n"...)
}

// AppendConstantDecls appends one constant declaration per constant and literal
// node of the graph in ID order.
func AppendConstantDecls(b []byte, g *fnode.Graph) []byte {
	for _, n := range g.Nodes() {
		id := n.ID()
		switch n.Kind() {
		case fnode.KindPi:
			b = appendLiteralDecl(b, id, piLiteral)
		case fnode.KindE:
			b = appendLiteralDecl(b, id, eLiteral)
		case fnode.KindValue:
			b = AppendFloatDecl(b, id, n.Values()[0])
		case fnode.KindVector2:
			v := n.Values()
			b = AppendVec2Decl(b, id, ms2.Vec{X: v[0], Y: v[1]})
		case fnode.KindVector3:
			v := n.Values()
			b = AppendVec3Decl(b, id, ms3.Vec{X: v[0], Y: v[1], Z: v[2]})
		case fnode.KindVector4:
			b = appendVecDecl(b, id, n.Values())
		case fnode.KindMatrix:
			b = AppendMat4Decl(b, id, n.Values())
		}
	}
	return b
}

func appendLiteralDecl(b []byte, id fnode.NodeID, literal string) []byte {
	b = append(b, "const float "...)
	b = AppendNodeName(b, id)
	b = append(b, " = "...)
	b = append(b, literal...)
	return append(b, ";\n"...)
}

func AppendFloatDecl(b []byte, id fnode.NodeID, v float32) []byte {
	b = append(b, "const float "...)
	b = AppendNodeName(b, id)
	b = append(b, " = "...)
	b = AppendFloat(b, v)
	return append(b, ";\n"...)
}

func AppendVec2Decl(b []byte, id fnode.NodeID, v ms2.Vec) []byte {
	arr := v.Array()
	return appendVecDecl(b, id, arr[:])
}

func AppendVec3Decl(b []byte, id fnode.NodeID, v ms3.Vec) []byte {
	arr := v.Array()
	return appendVecDecl(b, id, arr[:])
}

func appendVecDecl(b []byte, id fnode.NodeID, v []float32) []byte {
	b = append(b, "const "...)
	b = appendTypename(b, len(v))
	b = append(b, ' ')
	b = AppendNodeName(b, id)
	b = append(b, " = "...)
	b = appendTypename(b, len(v))
	b = append(b, '(')
	b = AppendFloats(b, ", ", v...)
	return append(b, ");\n"...)
}

// AppendMat4Decl appends a constant mat4 declaration. The 16 values are expected
// in column major order as per the OpenGL standard.
func AppendMat4Decl(b []byte, id fnode.NodeID, m []float32) []byte {
	b = append(b, "const mat4 "...)
	b = AppendNodeName(b, id)
	b = append(b, " = mat4("...)
	for col := 0; col < 4; col++ {
		b = AppendFloats(b, ", ", m[col*4:col*4+4]...)
		if col != 3 {
			b = append(b, ", "...)
		}
	}
	return append(b, ");\n"...)
}

const decimalDigits = 3

// AppendFloat appends v with three decimals, i.e: 2.000 or -0.125.
func AppendFloat(b []byte, v float32) []byte {
	return strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
}

func AppendFloats(b []byte, sep string, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, v)
		if i != len(s)-1 {
			b = append(b, sep...)
		}
	}
	return b
}

var errUnsupportedKind = errors.New("no code generation for node kind")
