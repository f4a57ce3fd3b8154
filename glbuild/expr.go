package glbuild

import (
	"fmt"

	"github.com/soypat/fnode"
)

// Function call expressions of single input operators.
var unaryCalls = map[fnode.Kind]string{
	fnode.KindAbs:       "abs",
	fnode.KindCos:       "cos",
	fnode.KindSin:       "sin",
	fnode.KindTan:       "tan",
	fnode.KindNormalize: "normalize",
	fnode.KindSqrt:      "sqrt",
	fnode.KindTrunc:     "trunc",
	fnode.KindRound:     "round",
	fnode.KindCeil:      "ceil",
	fnode.KindExp2:      "exp2",
	fnode.KindLength:    "length",
	fnode.KindTranspose: "transpose",
}

// Function call expressions of operators whose arguments pass through unchanged.
var callOps = map[fnode.Kind]string{
	fnode.KindMax:          "max",
	fnode.KindMin:          "min",
	fnode.KindLerp:         "mix",
	fnode.KindSmoothStep:   "smoothstep",
	fnode.KindCrossProduct: "cross",
	fnode.KindDistance:     "distance",
	fnode.KindDotProduct:   "dot",
}

var arithOps = map[fnode.Kind]string{
	fnode.KindAdd:      " + ",
	fnode.KindSubtract: " - ",
	fnode.KindMultiply: "*",
	fnode.KindDivide:   "/",
}

// appendExpr appends the right hand side of the declaration of node n. Its semantics
// match the CPU evaluation of the same node.
func appendExpr(b []byte, g *fnode.Graph, stage Stage, n *fnode.Node, inputs []fnode.NodeID) ([]byte, error) {
	k := n.Kind()
	if k.Category() == fnode.CategoryGeometryInput {
		return appendGeometryExpr(b, stage, k), nil
	}
	if len(inputs) < k.RequiredInputs() {
		return b, fmt.Errorf("%s has %d of %d inputs: %w", n, len(inputs), k.RequiredInputs(), fnode.ErrGraphIncomplete)
	}
	widths := make([]int, len(inputs))
	for i, id := range inputs {
		in, ok := g.Node(id)
		if !ok {
			return b, fmt.Errorf("%s input %d: %w", n, id, fnode.ErrGraphCorruption)
		}
		widths[i] = in.Width()
	}
	name := func(i int) []byte { return AppendNodeName(nil, inputs[i]) }
	a := name(0)

	if fn, ok := unaryCalls[k]; ok {
		return appendCall(b, fn, a), nil
	} else if fn, ok := callOps[k]; ok {
		args := make([][]byte, len(inputs))
		for i := range inputs {
			args[i] = name(i)
		}
		return appendCall(b, fn, args...), nil
	}

	switch k {
	case fnode.KindAdd, fnode.KindSubtract, fnode.KindMultiply, fnode.KindDivide:
		return appendArithmetic(b, k, inputs, widths), nil

	case fnode.KindAppend:
		if len(inputs) == 1 {
			return append(b, a...), nil
		}
		args := make([][]byte, len(inputs))
		for i := range inputs {
			args[i] = name(i)
		}
		return appendCall(b, string(appendTypename(nil, n.Width())), args...), nil

	case fnode.KindOneMinus:
		return fmt.Appendf(b, "(1.0 - %s)", a), nil
	case fnode.KindDeg2Rad:
		return fmt.Appendf(b, "%s*(%s/180.0)", a, piLiteral), nil
	case fnode.KindRad2Deg:
		return fmt.Appendf(b, "%s*(180.0/%s)", a, piLiteral), nil
	case fnode.KindNegate:
		return fmt.Appendf(b, "(-%s)", a), nil
	case fnode.KindReciprocal:
		return fmt.Appendf(b, "(1.0/%s)", a), nil
	case fnode.KindClamp01:
		return fmt.Appendf(b, "clamp(%s, 0.0, 1.0)", a), nil
	}

	// Two or more inputs from here on.
	c := name(1)
	switch k {
	case fnode.KindPower, fnode.KindStep:
		fn := "pow"
		if k == fnode.KindStep {
			// step(edge, x) is 1 when x >= edge, that is a <= b.
			fn = "step"
		}
		return appendCall(b, fn, a, splat(c, widths[0], widths[1])), nil
	case fnode.KindPosterize:
		return fmt.Appendf(b, "floor(%s*%s)/%s", a, c, c), nil
	case fnode.KindMultiplyMatrix:
		return fmt.Appendf(b, "%s*%s", a, c), nil
	case fnode.KindProjection:
		return fmt.Appendf(b, "dot(%s, %s)/dot(%s, %s)*%s", a, c, c, c, c), nil
	case fnode.KindRejection:
		return fmt.Appendf(b, "%s - dot(%s, %s)/dot(%s, %s)*%s", a, a, c, c, c, c), nil
	case fnode.KindHalfDirection:
		return fmt.Appendf(b, "normalize(%s) + normalize(%s)", a, c), nil
	case fnode.KindDesaturate:
		return appendDesaturate(b, a, c, widths[0]), nil
	}
	return b, fmt.Errorf("%s: %w", n, errUnsupportedKind)
}

func appendGeometryExpr(b []byte, stage Stage, k fnode.Kind) []byte {
	position, normal := "fragPosition", "fragNormal"
	if stage == StageVertex {
		position, normal = "vertexPosition", "vertexNormal"
	}
	switch k {
	case fnode.KindVertexPosition:
		return append(b, position...)
	case fnode.KindVertexNormal:
		return append(b, normal...)
	case fnode.KindViewDirection:
		return append(b, "viewDirection"...)
	case fnode.KindFresnel:
		return fmt.Appendf(b, "1.0 - dot(%s, viewDirection)", normal)
	case fnode.KindMVP:
		return append(b, "mvpMatrix"...)
	}
	panic("not a geometry input: " + k.String())
}

// appendArithmetic folds the operands left to right. Products of a 3 component
// vector and a matrix become a homogeneous transform of the vector.
func appendArithmetic(b []byte, k fnode.Kind, inputs []fnode.NodeID, widths []int) []byte {
	expr := AppendNodeName(nil, inputs[0])
	acc := widths[0]
	for i := 1; i < len(inputs); i++ {
		operand := AppendNodeName(nil, inputs[i])
		if k == fnode.KindMultiply && promotes(acc, widths[i]) {
			m, v := operand, expr
			if acc == 16 {
				m, v = expr, operand
			}
			expr = fmt.Appendf(nil, "(%s*vec4(%s, 1.0))", m, v)
			acc = 4
			continue
		}
		expr = append(expr, arithOps[k]...)
		expr = append(expr, operand...)
	}
	return append(b, expr...)
}

func promotes(a, b int) bool {
	return (a == 3 && b == 16) || (a == 16 && b == 3)
}

// appendDesaturate mixes the color toward its luminance 0.3R+0.6G+0.1B by the
// clamped amount t. Alpha of 4 component colors passes through.
func appendDesaturate(b, color, t []byte, width int) []byte {
	amount := fmt.Sprintf("clamp(%s, 0.0, 1.0)", t)
	switch width {
	case 1:
		return fmt.Appendf(b, "mix(%s, 0.3*%s, %s)", color, color, amount)
	case 2:
		return fmt.Appendf(b, "mix(%s, vec2(dot(%s, vec2(0.3, 0.6))), %s)", color, color, amount)
	case 3:
		return fmt.Appendf(b, "mix(%s, vec3(dot(%s, vec3(0.3, 0.6, 0.1))), %s)", color, color, amount)
	}
	return fmt.Appendf(b, "vec4(mix(%s.xyz, vec3(dot(%s.xyz, vec3(0.3, 0.6, 0.1))), %s), %s.w)", color, color, amount, color)
}

// splat widens a scalar operand to match a vector operand of width w.
func splat(operand []byte, w, operandWidth int) []byte {
	if w == operandWidth || w == 1 {
		return operand
	}
	return fmt.Appendf(nil, "%s(%s)", appendTypename(nil, w), operand)
}

func appendCall(b []byte, fn string, args ...[]byte) []byte {
	b = append(b, fn...)
	b = append(b, '(')
	for i, arg := range args {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, arg...)
	}
	return append(b, ')')
}
