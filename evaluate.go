package fnode

import (
	"fmt"
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/hashicorp/go-multierror"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
)

// Luminance weights used by the desaturate operator.
var lumaWeights = [3]float32{0.3, 0.6, 0.1}

// Evaluate recomputes the output of every node from its current inputs.
// Nodes are visited in dependency order so a single pass suffices for any chain depth.
//
// Per node problems such as a non-scalar exponent are collected into the returned
// error and leave the offending node with its last valid output. A link to a missing
// node or a cycle returns an error wrapping [ErrGraphCorruption] and no node is updated.
// Evaluate is idempotent for unchanged inputs.
func (g *Graph) Evaluate() error {
	order, err := g.sortNodes()
	if err != nil {
		g.log.Error("evaluation aborted", "error", err)
		return err
	}
	var warnings *multierror.Error
	for _, id := range order {
		n := g.nodes[id]
		err := g.evaluateNode(n)
		if err != nil {
			g.log.Warn("node evaluation", "node", n.id, "kind", n.kind, "error", err)
			warnings = multierror.Append(warnings, err)
		}
		if n.kind.Category() != CategoryLiteral {
			n.refreshText()
		}
	}
	return warnings.ErrorOrNil()
}

// sortNodes returns node IDs in topological order using Kahn's algorithm.
// Ties are broken by lowest ID so the order is deterministic.
func (g *Graph) sortNodes() ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.nodes))
	for _, l := range g.lines {
		if _, ok := g.nodes[l.From]; !ok {
			return nil, fmt.Errorf("line %d references missing source node %d: %w", l.ID, l.From, ErrGraphCorruption)
		} else if _, ok := g.nodes[l.To]; !ok {
			return nil, fmt.Errorf("line %d references missing destination node %d: %w", l.ID, l.To, ErrGraphCorruption)
		}
		indegree[l.To]++
	}
	var ready []NodeID
	for id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)
	order := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, l := range g.lines {
			if l.From != id {
				continue
			}
			indegree[l.To]--
			if indegree[l.To] == 0 {
				i, _ := slices.BinarySearch(ready, l.To)
				ready = slices.Insert(ready, i, l.To)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%d nodes are part of a cycle: %w", len(g.nodes)-len(order), ErrGraphCorruption)
	}
	return order, nil
}

func (g *Graph) evaluateNode(n *Node) error {
	switch n.kind.Category() {
	case CategoryConstant, CategoryLiteral, CategorySink:
		return nil
	case CategoryGeometryInput:
		n.setOutput(g.geometryValues(n.kind))
		return nil
	}
	inputs := g.Inputs(n.id)
	if len(inputs) < n.kind.RequiredInputs() {
		n.setOutput(nil)
		return nil
	}
	var args [MaxInputs][]float32
	for i, id := range inputs {
		in := g.nodes[id]
		if in.width == 0 {
			// Upstream node lacks inputs itself.
			n.setOutput(nil)
			return nil
		}
		args[i] = in.out[:in.width]
	}
	var buf [MaxValues]float32
	result, err := apply(n.kind, args[:len(inputs)], buf[:0])
	if err != nil {
		return fmt.Errorf("%s: %w", n, err)
	}
	n.setOutput(result)
	return nil
}

func (g *Graph) geometryValues(k Kind) []float32 {
	geom := &g.geom
	switch k {
	case KindVertexPosition:
		return vecSlice(geom.Position)
	case KindVertexNormal:
		return vecSlice(geom.Normal)
	case KindViewDirection:
		return vecSlice(geom.ViewDirection)
	case KindFresnel:
		return []float32{geom.Fresnel}
	case KindMVP:
		return geom.MVP[:]
	}
	panic("unreachable geometry kind " + k.String())
}

func vecSlice(v ms3.Vec) []float32 {
	arr := v.Array()
	return arr[:]
}

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrShapeMismatch}, args...)...)
}

// apply computes the output of an operator of kind k and appends it to dst.
func apply(k Kind, args [][]float32, dst []float32) ([]float32, error) {
	a := args[0]
	switch k {
	case KindAdd, KindSubtract, KindMultiply, KindDivide:
		return arithmetic(k, args, dst)

	case KindAppend:
		for _, arg := range args {
			dst = append(dst, arg...)
		}
		if len(dst) > 4 {
			return nil, shapeErrorf("appended width %d exceeds 4", len(dst))
		}
		return dst, nil

	case KindOneMinus, KindAbs, KindCos, KindSin, KindTan, KindDeg2Rad, KindRad2Deg,
		KindNegate, KindReciprocal, KindSqrt, KindTrunc, KindRound, KindCeil, KindClamp01, KindExp2:
		fn := unaryFuncs[k]
		for _, v := range a {
			dst = append(dst, fn(v))
		}
		return dst, nil

	case KindNormalize:
		if len(a) < 2 || len(a) > 4 {
			return nil, shapeErrorf("normalize of width %d", len(a))
		}
		return scale(dst, 1/norm(a), a), nil

	case KindLength:
		if len(a) > 4 {
			return nil, shapeErrorf("length of width %d", len(a))
		}
		return append(dst, norm(a)), nil

	case KindTranspose:
		if len(a) != 16 {
			return nil, shapeErrorf("transpose of width %d", len(a))
		}
		for col := 0; col < 4; col++ {
			for row := 0; row < 4; row++ {
				dst = append(dst, a[row*4+col])
			}
		}
		return dst, nil
	}

	b := args[1]
	switch k {
	case KindPower, KindPosterize:
		if len(b) != 1 {
			return nil, shapeErrorf("%s second operand must be scalar, got width %d", k, len(b))
		}
		s := b[0]
		for _, v := range a {
			if k == KindPower {
				dst = append(dst, math32.Pow(v, s))
			} else {
				dst = append(dst, math32.Floor(v*s)/s)
			}
		}
		return dst, nil

	case KindStep, KindMax, KindMin:
		if len(b) != 1 && len(b) != len(a) {
			return nil, shapeErrorf("%s operands of width %d and %d", k, len(a), len(b))
		}
		for i, v := range a {
			w := b[bcast(b, i)]
			switch k {
			case KindStep:
				dst = append(dst, b2f(v <= w))
			case KindMax:
				dst = append(dst, math32.Max(v, w))
			default:
				dst = append(dst, math32.Min(v, w))
			}
		}
		return dst, nil

	case KindCrossProduct:
		if len(a) != 3 || len(b) != 3 {
			return nil, shapeErrorf("cross product of widths %d and %d", len(a), len(b))
		}
		return append(dst, vecSlice(ms3.Cross(vec3(a), vec3(b)))...), nil

	case KindDesaturate:
		if len(b) != 1 || len(a) > 4 {
			return nil, shapeErrorf("desaturate of widths %d and %d", len(a), len(b))
		}
		t := ms1.Clamp(b[0], 0, 1)
		rgb := min(len(a), 3)
		var luma float32
		for i := 0; i < rgb; i++ {
			luma += lumaWeights[i] * a[i]
		}
		for i, v := range a {
			if i < rgb {
				v = ms1.Interp(v, luma, t)
			}
			dst = append(dst, v)
		}
		return dst, nil

	case KindDistance, KindDotProduct, KindProjection, KindRejection, KindHalfDirection:
		if len(a) != len(b) || len(a) > 4 {
			return nil, shapeErrorf("%s operands of width %d and %d", k, len(a), len(b))
		}
		switch k {
		case KindDistance:
			var d [4]float32
			for i := range a {
				d[i] = a[i] - b[i]
			}
			return append(dst, norm(d[:len(a)])), nil
		case KindDotProduct:
			return append(dst, dot(a, b)), nil
		case KindProjection:
			return scale(dst, dot(a, b)/dot(b, b), b), nil
		case KindRejection:
			s := dot(a, b) / dot(b, b)
			for i := range a {
				dst = append(dst, a[i]-s*b[i])
			}
			return dst, nil
		default:
			na, nb := 1/norm(a), 1/norm(b)
			for i := range a {
				dst = append(dst, a[i]*na+b[i]*nb)
			}
			return dst, nil
		}

	case KindMultiplyMatrix:
		if len(a) != 16 || len(b) != 16 {
			return nil, shapeErrorf("matrix multiply of widths %d and %d", len(a), len(b))
		}
		return mulMat(dst, a, b), nil

	case KindLerp, KindSmoothStep:
		c := args[2]
		if len(b) != len(a) || (len(c) != 1 && len(c) != len(a)) {
			return nil, shapeErrorf("%s operands of width %d, %d and %d", k, len(a), len(b), len(c))
		}
		for i := range a {
			x := c[bcast(c, i)]
			if k == KindLerp {
				dst = append(dst, ms1.Interp(a[i], b[i], x))
			} else {
				dst = append(dst, ms1.SmoothStep(a[i], b[i], x))
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%s is not an operator", k)
}

// arithmetic folds the inputs left to right with the kind's operator. Scalar right
// operands broadcast. Multiplying a 3 component vector and a 4x4 matrix transforms
// the point (x,y,z,1) and yields 4 components. Two matrices multiply as matrices.
func arithmetic(k Kind, args [][]float32, dst []float32) ([]float32, error) {
	acc := append(dst, args[0]...)
	for _, b := range args[1:] {
		switch {
		case k == KindMultiply && promotes(len(acc), len(b)):
			m, v := b, acc
			if len(acc) == 16 {
				m, v = acc, b
			}
			p := transformPoint(m, vec3(v))
			acc = append(acc[:0], p[:]...)
			continue
		case k == KindMultiply && len(acc) == 16 && len(b) == 16:
			var tmp [16]float32
			mulMat(tmp[:0], acc, b)
			acc = append(acc[:0], tmp[:]...)
			continue
		case len(b) != 1 && len(b) != len(acc):
			return nil, shapeErrorf("%s operands of width %d and %d", k, len(acc), len(b))
		}
		for i := range acc {
			w := b[bcast(b, i)]
			switch k {
			case KindAdd:
				acc[i] += w
			case KindSubtract:
				acc[i] -= w
			case KindMultiply:
				acc[i] *= w
			case KindDivide:
				acc[i] /= w
			}
		}
	}
	return acc, nil
}

var unaryFuncs = map[Kind]func(float32) float32{
	KindOneMinus:   func(v float32) float32 { return 1 - v },
	KindAbs:        math32.Abs,
	KindCos:        math32.Cos,
	KindSin:        math32.Sin,
	KindTan:        math32.Tan,
	KindDeg2Rad:    func(v float32) float32 { return v * (math32.Pi / 180) },
	KindRad2Deg:    func(v float32) float32 { return v * (180 / math32.Pi) },
	KindNegate:     func(v float32) float32 { return -v },
	KindReciprocal: func(v float32) float32 { return 1 / v },
	KindSqrt:       math32.Sqrt,
	KindTrunc:      math32.Trunc,
	KindRound:      func(v float32) float32 { return float32(math.Round(float64(v))) },
	KindCeil:       math32.Ceil,
	KindClamp01:    func(v float32) float32 { return ms1.Clamp(v, 0, 1) },
	KindExp2:       math32.Exp2,
}

// transformPoint applies the column major 4x4 matrix m to (v.X, v.Y, v.Z, 1).
func transformPoint(m []float32, v ms3.Vec) (p [4]float32) {
	h := [4]float32{v.X, v.Y, v.Z, 1}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			p[row] += m[col*4+row] * h[col]
		}
	}
	return p
}

// mulMat appends the product of column major 4x4 matrices a and b to dst.
func mulMat(dst, a, b []float32) []float32 {
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			dst = append(dst, sum)
		}
	}
	return dst
}

func dot(a, b []float32) float32 {
	switch len(a) {
	case 2:
		return ms2.Dot(vec2(a), vec2(b))
	case 3:
		return ms3.Dot(vec3(a), vec3(b))
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float32) float32 {
	switch len(a) {
	case 1:
		return math32.Abs(a[0])
	case 2:
		return ms2.Norm(vec2(a))
	case 3:
		return ms3.Norm(vec3(a))
	}
	return math32.Sqrt(dot(a, a))
}

func scale(dst []float32, s float32, a []float32) []float32 {
	for _, v := range a {
		dst = append(dst, s*v)
	}
	return dst
}

func vec2(a []float32) ms2.Vec { return ms2.Vec{X: a[0], Y: a[1]} }
func vec3(a []float32) ms3.Vec { return ms3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// bcast returns the index of b paired with element i of a wider operand.
func bcast(b []float32, i int) int {
	if len(b) == 1 {
		return 0
	}
	return i
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
