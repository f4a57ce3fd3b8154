package fnode_test

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/soypat/fnode"
	"github.com/soypat/geometry/ms3"
)

func TestEvaluateAdd(t *testing.T) {
	g := fnode.New(fnode.Config{})
	a := mustAdd(t, g, fnode.KindValue)
	b := mustAdd(t, g, fnode.KindValue)
	sum := mustAdd(t, g, fnode.KindAdd)
	g.SetValues(a, 2)
	g.SetValues(b, 3)
	mustLink(t, g, a, sum)
	mustLink(t, g, b, sum)
	mustEval(t, g)
	n, _ := g.Node(sum)
	if diff := cmp.Diff([]float32{5}, n.Values()); diff != "" {
		t.Errorf("sum mismatch (-want +got):\n%s", diff)
	}
	if n.Text(0) != "5.000" {
		t.Errorf("want display text 5.000, got %q", n.Text(0))
	}
	// Idempotent for unchanged inputs.
	mustEval(t, g)
	if diff := cmp.Diff([]float32{5}, values(t, g, sum)); diff != "" {
		t.Errorf("second pass changed output (-want +got):\n%s", diff)
	}
}

func TestEvaluateChainSinglePass(t *testing.T) {
	g := fnode.New(fnode.Config{})
	v := mustAdd(t, g, fnode.KindValue)
	g.SetValues(v, 1)
	// Build the chain back to front so IDs do not follow dependency order.
	const depth = 8
	chain := make([]fnode.NodeID, depth)
	for i := range chain {
		chain[i] = mustAdd(t, g, fnode.KindAdd)
	}
	mustLink(t, g, v, chain[depth-1])
	for i := depth - 1; i > 0; i-- {
		mustLink(t, g, chain[i], chain[i-1])
		mustLink(t, g, v, chain[i-1])
	}
	mustEval(t, g)
	if diff := cmp.Diff([]float32{depth}, values(t, g, chain[0])); diff != "" {
		t.Errorf("chain head mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateMultiplyPromotion(t *testing.T) {
	g := fnode.New(fnode.Config{})
	v := mustAdd(t, g, fnode.KindVector3)
	m := mustAdd(t, g, fnode.KindMatrix)
	mul := mustAdd(t, g, fnode.KindMultiply)
	g.SetValues(v, 1, 2, 3)
	translate := []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 10, 20, 30, 1}
	if err := g.SetValues(m, translate...); err != nil {
		t.Fatal(err)
	}
	mustLink(t, g, v, mul)
	mustLink(t, g, m, mul)
	mustEval(t, g)
	if diff := cmp.Diff([]float32{11, 22, 33, 1}, values(t, g, mul), approx); diff != "" {
		t.Errorf("promotion mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateOperators(t *testing.T) {
	for _, test := range []struct {
		kind   fnode.Kind
		inputs [][]float32
		want   []float32
	}{
		{fnode.KindSubtract, [][]float32{{5, 6}, {1}}, []float32{4, 5}},
		{fnode.KindDivide, [][]float32{{8}, {2}, {2}}, []float32{2}},
		{fnode.KindAppend, [][]float32{{1, 2}, {3}}, []float32{1, 2, 3}},
		{fnode.KindOneMinus, [][]float32{{0.25}}, []float32{0.75}},
		{fnode.KindNegate, [][]float32{{1, -2}}, []float32{-1, 2}},
		{fnode.KindReciprocal, [][]float32{{4}}, []float32{0.25}},
		{fnode.KindRound, [][]float32{{2.5, -1.4}}, []float32{3, -1}},
		{fnode.KindClamp01, [][]float32{{-1, 0.5, 2}}, []float32{0, 0.5, 1}},
		{fnode.KindDeg2Rad, [][]float32{{180}}, []float32{math32.Pi}},
		{fnode.KindExp2, [][]float32{{3}}, []float32{8}},
		{fnode.KindNormalize, [][]float32{{3, 0, 4}}, []float32{0.6, 0, 0.8}},
		{fnode.KindLength, [][]float32{{3, 4}}, []float32{5}},
		{fnode.KindPower, [][]float32{{2, 3}, {2}}, []float32{4, 9}},
		{fnode.KindPosterize, [][]float32{{0.55}, {4}}, []float32{0.5}},
		{fnode.KindStep, [][]float32{{1}, {2}}, []float32{1}},
		{fnode.KindMax, [][]float32{{1, 5}, {3, 3}}, []float32{3, 5}},
		{fnode.KindMin, [][]float32{{1, 5}, {3, 3}}, []float32{1, 3}},
		{fnode.KindLerp, [][]float32{{0, 10}, {10, 20}, {0.5, 0.5}}, []float32{5, 15}},
		{fnode.KindCrossProduct, [][]float32{{1, 0, 0}, {0, 1, 0}}, []float32{0, 0, 1}},
		{fnode.KindDistance, [][]float32{{0, 0}, {3, 4}}, []float32{5}},
		{fnode.KindDotProduct, [][]float32{{1, 2, 3}, {4, 5, 6}}, []float32{32}},
		{fnode.KindProjection, [][]float32{{2, 2}, {1, 0}}, []float32{2, 0}},
		{fnode.KindRejection, [][]float32{{2, 2}, {1, 0}}, []float32{0, 2}},
		{fnode.KindHalfDirection, [][]float32{{2, 0}, {0, 3}}, []float32{1, 1}},
		{fnode.KindDesaturate, [][]float32{{1, 0, 0, 0.5}, {1}}, []float32{0.3, 0.3, 0.3, 0.5}},
		{fnode.KindDesaturate, [][]float32{{1, 0, 0}, {-2}}, []float32{1, 0, 0}},
	} {
		g := fnode.New(fnode.Config{})
		op := mustAdd(t, g, test.kind)
		for _, in := range test.inputs {
			id := mustAdd(t, g, literalKind(len(in)))
			if err := g.SetValues(id, in...); err != nil {
				t.Fatal(err)
			}
			mustLink(t, g, id, op)
		}
		mustEval(t, g)
		if diff := cmp.Diff(test.want, values(t, g, op), approx); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", test.kind, diff)
		}
	}
}

func literalKind(width int) fnode.Kind {
	switch width {
	case 2:
		return fnode.KindVector2
	case 3:
		return fnode.KindVector3
	case 4:
		return fnode.KindVector4
	case 16:
		return fnode.KindMatrix
	}
	return fnode.KindValue
}

func TestEvaluateShapeMismatchKeepsOutput(t *testing.T) {
	g := fnode.New(fnode.Config{})
	base := mustAdd(t, g, fnode.KindVector2)
	exp := mustAdd(t, g, fnode.KindValue)
	pow := mustAdd(t, g, fnode.KindPower)
	g.SetValues(base, 2, 3)
	g.SetValues(exp, 2)
	mustLink(t, g, base, pow)
	mustLink(t, g, exp, pow)
	mustEval(t, g)

	// Feed the exponent through an Append that widens after the power
	// link was validated.
	app := mustAdd(t, g, fnode.KindAppend)
	mustLink(t, g, exp, app)
	mustEval(t, g)
	g.UnlinkInputs(pow)
	mustLink(t, g, base, pow)
	mustLink(t, g, app, pow)
	mustEval(t, g)
	extra := mustAdd(t, g, fnode.KindValue)
	mustLink(t, g, extra, app)

	err := g.Evaluate()
	if !errors.Is(err, fnode.ErrShapeMismatch) {
		t.Fatalf("want shape mismatch warning, got %v", err)
	}
	if fnode.IsFatal(err) {
		t.Fatal("shape mismatch must not be fatal")
	}
	if len(fnode.Warnings(err)) != 1 {
		t.Errorf("want one warning, got %v", fnode.Warnings(err))
	}
	if diff := cmp.Diff([]float32{4, 9}, values(t, g, pow), approx); diff != "" {
		t.Errorf("power must keep last output (-want +got):\n%s", diff)
	}
}

func TestEvaluateMissingInput(t *testing.T) {
	g := fnode.New(fnode.Config{})
	v := mustAdd(t, g, fnode.KindValue)
	lerp := mustAdd(t, g, fnode.KindLerp)
	neg := mustAdd(t, g, fnode.KindNegate)
	mustLink(t, g, v, lerp)
	mustLink(t, g, lerp, neg)
	mustEval(t, g)
	for _, id := range []fnode.NodeID{lerp, neg} {
		n, _ := g.Node(id)
		if n.Width() != 0 {
			t.Errorf("%s: want no output, got width %d", n, n.Width())
		}
	}
}

func TestEvaluateGeometryInputs(t *testing.T) {
	g := fnode.New(fnode.Config{})
	pos := mustAdd(t, g, fnode.KindVertexPosition)
	fresnel := mustAdd(t, g, fnode.KindFresnel)
	mvp := mustAdd(t, g, fnode.KindMVP)
	in := fnode.DefaultGeometryInputs()
	in.Position = ms3.Vec{X: 1, Y: 2, Z: 3}
	in.Fresnel = 0.25
	g.SetGeometryInputs(in)
	mustEval(t, g)
	if diff := cmp.Diff([]float32{1, 2, 3}, values(t, g, pos)); diff != "" {
		t.Errorf("position mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0.25}, values(t, g, fresnel)); diff != "" {
		t.Errorf("fresnel mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in.MVP[:], values(t, g, mvp)); diff != "" {
		t.Errorf("mvp mismatch (-want +got):\n%s", diff)
	}
}
