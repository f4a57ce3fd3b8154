package glrender

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/soypat/fnode"
	"github.com/soypat/geometry/ms2"
)

func diagramGraph(t *testing.T) *fnode.Graph {
	t.Helper()
	g := fnode.New(fnode.Config{})
	add := func(k fnode.Kind, x, y float32) fnode.NodeID {
		id, err := g.AddNode(k)
		if err != nil {
			t.Fatal(err)
		}
		g.SetPosition(id, ms2.Vec{X: x, Y: y})
		return id
	}
	color := add(fnode.KindVector3, 0, 0)
	fresnel := add(fnode.KindFresnel, 0, 150)
	mul := add(fnode.KindMultiply, 300, 50)
	g.SetPosition(g.FragmentSink(), ms2.Vec{X: 600, Y: 50})
	g.SetPosition(g.VertexSink(), ms2.Vec{X: 600, Y: 200})
	g.SetValues(color, 1, 0.5, 0.25)
	g.Evaluate()
	for _, link := range [][2]fnode.NodeID{{color, mul}, {fresnel, mul}, {mul, g.FragmentSink()}} {
		if _, err := g.Link(link[0], link[1]); err != nil {
			t.Fatal(err)
		}
		g.Evaluate()
	}
	return g
}

func TestDiagramLayout(t *testing.T) {
	dr, err := NewDiagramRenderer(DiagramConfig{Margin: 10, NodeWidth: 100})
	if err != nil {
		t.Fatal(err)
	}
	g := diagramGraph(t)
	boxes, bounds := dr.layout(g)
	if len(boxes) != g.Len() {
		t.Fatalf("want %d boxes, got %d", g.Len(), len(boxes))
	}
	if bounds.Min != (image.Point{}) {
		t.Error("diagram should start at origin", bounds)
	}
	for id, box := range boxes {
		if !box.In(bounds) {
			t.Errorf("node %d box %v outside bounds %v", id, box, bounds)
		}
		if box.Dx() != 100 {
			t.Errorf("node %d box width %d", id, box.Dx())
		}
	}
	if got := boxes[0].Min; got != image.Pt(10, 10) {
		t.Errorf("first node should be offset by margin, got %v", got)
	}
	if bounds.Dx() != 600+100+2*10 {
		t.Errorf("unexpected diagram width %d", bounds.Dx())
	}
}

func TestDiagramRender(t *testing.T) {
	dr, err := NewDiagramRenderer(DiagramConfig{})
	if err != nil {
		t.Fatal(err)
	}
	g := diagramGraph(t)
	img := image.NewRGBA(dr.Bounds(g))
	err = dr.Render(img, g)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(0, 0); got != background {
		t.Errorf("want background %v at origin, got %v", background, got)
	}
	boxes, _ := dr.layout(g)
	for _, n := range g.Nodes() {
		box := boxes[n.ID()]
		// Top right of the header is clear of label text.
		got := img.RGBAAt(box.Max.X-2, box.Min.Y+1)
		want := CategoryColor(n.Kind().Category())
		if got != want {
			t.Errorf("%s header: want %v, got %v", n, want, got)
		}
	}
}

func TestNodeRows(t *testing.T) {
	g := fnode.New(fnode.Config{})
	mvp, _ := g.AddNode(fnode.KindMVP)
	neg, _ := g.AddNode(fnode.KindNegate)
	g.Evaluate()
	n, _ := g.Node(mvp)
	rows := nodeRows(n)
	if len(rows) != 5 {
		t.Fatalf("matrix should take a header and 4 rows, got %q", rows)
	}
	if rows[1] != "1.000 0.000 0.000 0.000" {
		t.Errorf("unexpected first column %q", rows[1])
	}
	n, _ = g.Node(neg)
	if rows = nodeRows(n); len(rows) != 2 || rows[1] != "-" {
		t.Errorf("node without output: got %q", rows)
	}
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	err := EncodePNG(&buf, diagramGraph(t))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Empty() {
		t.Error("empty image")
	}
	if err := EncodePNG(&buf, fnode.New(fnode.Config{})); err != nil {
		t.Error("graph with only sinks should render:", err)
	}
}

func TestCategoryColorDistinct(t *testing.T) {
	seen := make(map[[3]uint8]fnode.Category)
	for c := fnode.CategoryConstant; c <= fnode.CategorySink; c++ {
		rgba := CategoryColor(c)
		key := [3]uint8{rgba.R, rgba.G, rgba.B}
		if other, ok := seen[key]; ok {
			t.Errorf("%s and %s share color %v", c, other, rgba)
		}
		seen[key] = c
		if bodyColor(c) == rgba {
			t.Errorf("%s body and header colors match", c)
		}
	}
}
