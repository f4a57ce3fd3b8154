package glbuild_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/soypat/fnode"
	"github.com/soypat/fnode/glbuild"
)

func mustAdd(t *testing.T, g *fnode.Graph, k fnode.Kind) fnode.NodeID {
	t.Helper()
	id, err := g.AddNode(k)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustLink(t *testing.T, g *fnode.Graph, from, to fnode.NodeID) {
	t.Helper()
	_, err := g.Link(from, to)
	if err != nil {
		t.Fatal(err)
	}
}

// addGraph returns a graph computing 2+3 into the fragment sink.
func addGraph(t *testing.T) *fnode.Graph {
	g := fnode.New(fnode.Config{})
	a := mustAdd(t, g, fnode.KindValue)
	b := mustAdd(t, g, fnode.KindValue)
	sum := mustAdd(t, g, fnode.KindAdd)
	g.SetValues(a, 2)
	g.SetValues(b, 3)
	mustLink(t, g, a, sum)
	mustLink(t, g, b, sum)
	if err := g.Evaluate(); err != nil {
		t.Fatal(err)
	}
	mustLink(t, g, sum, g.FragmentSink())
	return g
}

func TestCompileAdd(t *testing.T) {
	g := addGraph(t)
	programmer := glbuild.NewDefaultProgrammer()
	_, fragment, err := programmer.Compile(g)
	if !errors.Is(err, fnode.ErrGraphIncomplete) {
		t.Fatal("expected vertex stage to be incomplete, got", err)
	}
	src := string(fragment)
	for _, want := range []string{
		"#version 330",
		"const float node_00 = 2.000;",
		"const float node_01 = 3.000;",
		"float node_02 = node_00 + node_01;",
		"finalColor = vec4(node_02, node_02, node_02, 1.0);",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("\n%s\nmissing %q", src, want)
		}
	}
}

func TestWriteStageDeterministic(t *testing.T) {
	g := addGraph(t)
	programmer := glbuild.NewDefaultProgrammer()
	var first, second bytes.Buffer
	n, err := programmer.WriteStage(&first, g, glbuild.StageFragment)
	if err != nil {
		t.Fatal(err)
	} else if n != first.Len() {
		t.Fatal("written length mismatch")
	}
	_, err = glbuild.NewDefaultProgrammer().WriteStage(&second, g, glbuild.StageFragment)
	if err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("output differs between runs:\n%s\n%s", first.String(), second.String())
	}
}

func TestSharedNodeDeclaredOnce(t *testing.T) {
	g := fnode.New(fnode.Config{})
	v := mustAdd(t, g, fnode.KindVector3)
	cos := mustAdd(t, g, fnode.KindCos)
	sin := mustAdd(t, g, fnode.KindSin)
	sum := mustAdd(t, g, fnode.KindAdd)
	mustLink(t, g, v, cos)
	g.Evaluate()
	mustLink(t, g, cos, sin)
	g.Evaluate()
	mustLink(t, g, cos, sum)
	mustLink(t, g, sin, sum)
	g.Evaluate()
	mustLink(t, g, sum, g.FragmentSink())

	var buf bytes.Buffer
	_, err := glbuild.NewDefaultProgrammer().WriteStage(&buf, g, glbuild.StageFragment)
	if err != nil {
		t.Fatal(err)
	}
	src := buf.String()
	decl := "vec3 node_01 = cos(node_00);"
	if got := strings.Count(src, decl); got != 1 {
		t.Errorf("\n%s\nwant one declaration of cos node, got %d", src, got)
	}
	if strings.Index(src, decl) > strings.Index(src, "vec3 node_02 = sin(node_01);") {
		t.Errorf("\n%s\ncos must be declared before its consumer", src)
	}
	if !strings.Contains(src, "finalColor = vec4(node_03.xyz, 1.0);") {
		t.Errorf("\n%s\nmissing vec3 output assignment", src)
	}
}

func TestUnconnectedStage(t *testing.T) {
	g := fnode.New(fnode.Config{})
	var buf bytes.Buffer
	_, err := glbuild.NewDefaultProgrammer().WriteStage(&buf, g, glbuild.StageVertex)
	if !errors.Is(err, fnode.ErrGraphIncomplete) {
		t.Fatal("want incomplete graph error, got", err)
	}
	if fnode.IsFatal(err) {
		t.Fatal("unconnected sink must not be fatal")
	}
	src := buf.String()
	if !strings.HasSuffix(src, "void main()\n{\n}\n") {
		t.Errorf("\n%s\nwant empty main function", src)
	}
}

func TestMissingInputLeavesBodyEmpty(t *testing.T) {
	g := fnode.New(fnode.Config{})
	v := mustAdd(t, g, fnode.KindValue)
	power := mustAdd(t, g, fnode.KindPower)
	mustLink(t, g, v, power) // Exponent left unconnected.
	g.Evaluate()
	mustLink(t, g, power, g.FragmentSink())

	var buf bytes.Buffer
	_, err := glbuild.NewDefaultProgrammer().WriteStage(&buf, g, glbuild.StageFragment)
	if !errors.Is(err, fnode.ErrGraphIncomplete) {
		t.Fatal("want incomplete graph error, got", err)
	}
	src := buf.String()
	if strings.Contains(src, "finalColor =") || strings.Contains(src, "node_01 =") {
		t.Errorf("\n%s\nincomplete stage must leave main empty", src)
	}
}

func TestMatrixPromotion(t *testing.T) {
	g := fnode.New(fnode.Config{})
	m := mustAdd(t, g, fnode.KindMatrix)
	v := mustAdd(t, g, fnode.KindVector3)
	mul := mustAdd(t, g, fnode.KindMultiply)
	mustLink(t, g, v, mul)
	mustLink(t, g, m, mul)
	g.Evaluate()
	mustLink(t, g, mul, g.FragmentSink())

	var buf bytes.Buffer
	_, err := glbuild.NewDefaultProgrammer().WriteStage(&buf, g, glbuild.StageFragment)
	if err != nil {
		t.Fatal(err)
	}
	src := buf.String()
	for _, want := range []string{
		"const mat4 node_00 = mat4(1.000, 0.000, 0.000, 0.000, 0.000, 1.000, 0.000, 0.000, 0.000, 0.000, 1.000, 0.000, 0.000, 0.000, 0.000, 1.000);",
		"const vec3 node_01 = vec3(0.000, 0.000, 0.000);",
		"vec4 node_02 = (node_00*vec4(node_01, 1.0));",
		"finalColor = node_02;",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("\n%s\nmissing %q", src, want)
		}
	}
}

func TestVertexStage(t *testing.T) {
	g := fnode.New(fnode.Config{})
	mvp := mustAdd(t, g, fnode.KindMVP)
	fresnel := mustAdd(t, g, fnode.KindFresnel)
	g.Evaluate()
	mustLink(t, g, mvp, g.VertexSink())
	mustLink(t, g, fresnel, g.FragmentSink())

	programmer := glbuild.NewDefaultProgrammer()
	vertex, fragment, err := programmer.Compile(g)
	if err != nil {
		t.Fatal(err)
	}
	vs, fs := string(vertex), string(fragment)
	for _, want := range []string{
		"mat4 node_00 = mvpMatrix;",
		"gl_Position = node_00*vec4(vertexPosition, 1.0);",
		"fragNormal = vertexNormal;",
	} {
		if !strings.Contains(vs, want) {
			t.Errorf("\n%s\nvertex stage missing %q", vs, want)
		}
	}
	if !strings.Contains(fs, "float node_01 = 1.0 - dot(fragNormal, viewDirection);") {
		t.Errorf("\n%s\nfragment stage missing fresnel term", fs)
	}
}

func TestOperatorExpressions(t *testing.T) {
	for _, test := range []struct {
		kind   fnode.Kind
		inputs []fnode.Kind
		want   string
	}{
		{fnode.KindDotProduct, []fnode.Kind{fnode.KindVector3, fnode.KindVector3}, "float node_02 = dot(node_00, node_01);"},
		{fnode.KindAppend, []fnode.Kind{fnode.KindValue, fnode.KindValue}, "vec2 node_02 = vec2(node_00, node_01);"},
		{fnode.KindPower, []fnode.Kind{fnode.KindVector2, fnode.KindValue}, "vec2 node_02 = pow(node_00, vec2(node_01));"},
		{fnode.KindLerp, []fnode.Kind{fnode.KindValue, fnode.KindValue, fnode.KindValue}, "float node_03 = mix(node_00, node_01, node_02);"},
		{fnode.KindCrossProduct, []fnode.Kind{fnode.KindVector3, fnode.KindVector3}, "vec3 node_02 = cross(node_00, node_01);"},
		{fnode.KindOneMinus, []fnode.Kind{fnode.KindValue}, "float node_01 = (1.0 - node_00);"},
		{fnode.KindLength, []fnode.Kind{fnode.KindVector4}, "float node_01 = length(node_00);"},
		{fnode.KindDesaturate, []fnode.Kind{fnode.KindVector3, fnode.KindValue}, "vec3 node_02 = mix(node_00, vec3(dot(node_00, vec3(0.3, 0.6, 0.1))), clamp(node_01, 0.0, 1.0));"},
	} {
		g := fnode.New(fnode.Config{})
		var ids []fnode.NodeID
		for _, k := range test.inputs {
			ids = append(ids, mustAdd(t, g, k))
		}
		op := mustAdd(t, g, test.kind)
		for _, id := range ids {
			mustLink(t, g, id, op)
		}
		if err := g.Evaluate(); err != nil {
			t.Fatal(test.kind, err)
		}
		mustLink(t, g, op, g.FragmentSink())
		var buf bytes.Buffer
		_, err := glbuild.NewDefaultProgrammer().WriteStage(&buf, g, glbuild.StageFragment)
		if err != nil {
			t.Fatal(test.kind, err)
		}
		if !strings.Contains(buf.String(), test.want) {
			t.Errorf("\n%s\n%s: missing %q", buf.String(), test.kind, test.want)
		}
	}
}
