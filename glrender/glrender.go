// Package glrender draws node graphs as raster diagrams. Each node is a box
// placed at its canvas position with a header naming the node and one row per
// group of output values. Links are drawn as curves from the output port of
// the source to the input port of the destination.
package glrender

import (
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"github.com/golang/freetype/raster"
	"github.com/golang/freetype/truetype"
	"github.com/soypat/fnode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Values shown per row of a node box. A 4x4 matrix takes 4 rows.
const valuesPerRow = 4

// DiagramConfig configures a [DiagramRenderer]. The zero value is ready to use.
type DiagramConfig struct {
	// Scale is the number of pixels per canvas unit. Zero means 1.
	Scale float32
	// Margin around the diagram in pixels. Zero means 20.
	Margin int
	// NodeWidth is the width of node boxes in pixels. Zero means 200.
	NodeWidth int
	// FontSize is the label size in points at 72 DPI. Zero means 12.
	FontSize float64
	// TTF is the label font file contents. Nil uses Go Regular.
	TTF []byte
}

// DiagramRenderer renders [fnode.Graph] diagrams to images.
type DiagramRenderer struct {
	face      font.Face
	scale     float32
	margin    int
	nodeWidth int
	rowHeight int
	ascent    int
	r         *raster.Rasterizer
}

// NewDiagramRenderer parses the configured font and returns a renderer ready to draw.
func NewDiagramRenderer(cfg DiagramConfig) (*DiagramRenderer, error) {
	if cfg.Scale < 0 || cfg.Margin < 0 || cfg.NodeWidth < 0 || cfg.FontSize < 0 {
		return nil, errors.New("negative diagram configuration value")
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	if cfg.Margin == 0 {
		cfg.Margin = 20
	}
	if cfg.NodeWidth == 0 {
		cfg.NodeWidth = 200
	}
	if cfg.FontSize == 0 {
		cfg.FontSize = 12
	}
	if cfg.TTF == nil {
		cfg.TTF = goregular.TTF
	}
	ttf, err := truetype.Parse(cfg.TTF)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	metrics := face.Metrics()
	dr := &DiagramRenderer{
		face:      face,
		scale:     cfg.Scale,
		margin:    cfg.Margin,
		nodeWidth: cfg.NodeWidth,
		rowHeight: metrics.Height.Ceil() + 4,
		ascent:    metrics.Ascent.Ceil(),
	}
	return dr, nil
}

// Bounds returns the image rectangle needed to draw g in full.
func (dr *DiagramRenderer) Bounds(g *fnode.Graph) image.Rectangle {
	_, bounds := dr.layout(g)
	return bounds
}

// Render draws g onto dst. Nodes are laid out relative to dst's minimum point.
// Use [DiagramRenderer.Bounds] to size dst so that no node is clipped.
func (dr *DiagramRenderer) Render(dst *image.RGBA, g *fnode.Graph) error {
	boxes, _ := dr.layout(g)
	if len(boxes) == 0 {
		return errors.New("empty graph")
	}
	off := dst.Bounds().Min
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	// Links first so boxes are drawn over curve ends.
	// The painter works in absolute image coordinates.
	bb := dst.Bounds()
	if dr.r == nil {
		dr.r = raster.NewRasterizer(bb.Max.X, bb.Max.Y)
	} else {
		dr.r.SetBounds(bb.Max.X, bb.Max.Y)
	}
	dr.r.Clear()
	for _, line := range g.Lines() {
		from, okFrom := boxes[line.From]
		to, okTo := boxes[line.To]
		if !okFrom || !okTo {
			return errors.New("link references missing node")
		}
		inputs := g.Inputs(line.To)
		slot := slotOf(inputs, line.From)
		start := image.Pt(from.Max.X, from.Min.Y+dr.rowHeight/2)
		end := image.Pt(to.Min.X, to.Min.Y+to.Dy()*(slot+1)/(len(inputs)+1))
		dr.addCurve(start.Add(off), end.Add(off))
	}
	painter := raster.NewRGBAPainter(dst)
	painter.SetColor(linkColor)
	dr.r.Rasterize(painter)

	d := font.Drawer{Dst: dst, Src: image.NewUniform(textColor), Face: dr.face}
	for _, n := range g.Nodes() {
		box := boxes[n.ID()].Add(off)
		category := n.Kind().Category()
		header := box
		header.Max.Y = header.Min.Y + dr.rowHeight
		draw.Draw(dst, box, image.NewUniform(bodyColor(category)), image.Point{}, draw.Src)
		draw.Draw(dst, header, image.NewUniform(CategoryColor(category)), image.Point{}, draw.Src)
		for i, text := range nodeRows(n) {
			d.Dot = fixed.P(box.Min.X+4, box.Min.Y+i*dr.rowHeight+dr.ascent+2)
			d.DrawString(text)
		}
	}
	return nil
}

// addCurve adds a stroked cubic curve between an output and an input port.
func (dr *DiagramRenderer) addCurve(start, end image.Point) {
	bend := max(abs(end.X-start.X)/2, 30)
	var path raster.Path
	path.Start(fixed.P(start.X, start.Y))
	path.Add3(fixed.P(start.X+bend, start.Y), fixed.P(end.X-bend, end.Y), fixed.P(end.X, end.Y))
	dr.r.AddStroke(path, fixed.I(2), raster.RoundCapper, raster.RoundJoiner)
}

// layout returns node boxes in pixel space translated so the diagram starts at the origin.
func (dr *DiagramRenderer) layout(g *fnode.Graph) (map[fnode.NodeID]image.Rectangle, image.Rectangle) {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil, image.Rectangle{}
	}
	boxes := make(map[fnode.NodeID]image.Rectangle, len(nodes))
	var union image.Rectangle
	for i, n := range nodes {
		pos := n.Position()
		corner := image.Pt(int(pos.X*dr.scale), int(pos.Y*dr.scale))
		box := image.Rectangle{Min: corner, Max: corner.Add(image.Pt(dr.nodeWidth, len(nodeRows(n))*dr.rowHeight))}
		boxes[n.ID()] = box
		if i == 0 {
			union = box
		} else {
			union = union.Union(box)
		}
	}
	shift := image.Pt(dr.margin, dr.margin).Sub(union.Min)
	for id, box := range boxes {
		boxes[id] = box.Add(shift)
	}
	bounds := image.Rect(0, 0, union.Dx()+2*dr.margin, union.Dy()+2*dr.margin)
	return boxes, bounds
}

// nodeRows returns the text lines drawn in a node box, header first.
func nodeRows(n *fnode.Node) []string {
	rows := []string{n.DisplayName()}
	var sb strings.Builder
	for i := 0; i < n.Width(); i += valuesPerRow {
		sb.Reset()
		for j := i; j < min(i+valuesPerRow, n.Width()); j++ {
			if j != i {
				sb.WriteByte(' ')
			}
			sb.WriteString(n.Text(j))
		}
		rows = append(rows, sb.String())
	}
	if len(rows) == 1 {
		// Unevaluated or missing inputs.
		rows = append(rows, "-")
	}
	return rows
}

func slotOf(inputs []fnode.NodeID, from fnode.NodeID) int {
	for i, id := range inputs {
		if id == from {
			return i
		}
	}
	return 0
}

// EncodePNG renders g with the default configuration and writes it to w as a PNG image.
func EncodePNG(w io.Writer, g *fnode.Graph) error {
	dr, err := NewDiagramRenderer(DiagramConfig{})
	if err != nil {
		return err
	}
	img := image.NewRGBA(dr.Bounds(g))
	err = dr.Render(img, g)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
