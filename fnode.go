package fnode

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/hashicorp/go-hclog"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Capacity limits of a [Graph].
const (
	MaxNodes  = 128
	MaxLines  = 512
	MaxInputs = 4
	MaxValues = 16
	// DefaultGridSpacing is the canvas grid used by [Graph.AlignNode] when
	// [Config.GridSpacing] is not set.
	DefaultGridSpacing = 25
)

// NodeID identifies a node. IDs are small, unique among live nodes and reused
// lowest first after deletion.
type NodeID int

// LineID identifies a link. Reused the same way as [NodeID].
type LineID int

// NoNode marks an unused input slot.
const NoNode NodeID = -1

// Config configures a new [Graph].
type Config struct {
	// Logger receives graph edit and evaluation events. Nil disables logging.
	Logger hclog.Logger
	// GridSpacing is the canvas grid size nodes snap to. Zero means [DefaultGridSpacing].
	GridSpacing float32
}

// Node is a unit of computation in the graph. Nodes are created and owned by a [Graph].
type Node struct {
	id   NodeID
	kind Kind
	name string
	pos  ms2.Vec
	// Output values and their display text. Only the first width entries are meaningful.
	width int
	out   [MaxValues]float32
	text  [MaxValues]string
}

func (n *Node) ID() NodeID          { return n.id }
func (n *Node) Kind() Kind          { return n.kind }
func (n *Node) DisplayName() string { return n.name }
func (n *Node) Position() ms2.Vec   { return n.pos }

// Width returns the number of output values. It is one of 0, 1, 2, 3, 4 or 16.
func (n *Node) Width() int { return n.width }

// Values returns a copy of the node's output values.
func (n *Node) Values() []float32 { return append([]float32(nil), n.out[:n.width]...) }

// Text returns the display text of output value i.
func (n *Node) Text(i int) string {
	if i < 0 || i >= n.width {
		return ""
	}
	return n.text[i]
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}

func (n *Node) setOutput(v []float32) {
	n.width = copy(n.out[:], v)
	for i := n.width; i < MaxValues; i++ {
		n.out[i] = 0
		n.text[i] = ""
	}
}

func (n *Node) refreshText() {
	for i := 0; i < n.width; i++ {
		n.text[i] = formatValue(n.out[i])
	}
}

func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 3, 32)
}

// Line is a directed link feeding the output of From into an input of To.
type Line struct {
	ID       LineID
	From, To NodeID
}

// GeometryInputs are the externally supplied values of geometry input nodes.
// They are copied into the nodes on the next [Graph.Evaluate].
type GeometryInputs struct {
	Position      ms3.Vec
	Normal        ms3.Vec
	ViewDirection ms3.Vec
	Fresnel       float32
	// MVP is the model-view-projection matrix in column major order.
	MVP [16]float32
}

// DefaultGeometryInputs returns inputs for a unit normal facing the viewer
// and an identity transform.
func DefaultGeometryInputs() GeometryInputs {
	return GeometryInputs{
		Normal:        ms3.Vec{Z: 1},
		ViewDirection: ms3.Vec{Z: 1},
		MVP:           identity4,
	}
}

var identity4 = [16]float32{0: 1, 5: 1, 10: 1, 15: 1}

// Graph stores nodes and the links between them. A Graph always contains
// exactly one vertex stage sink and one fragment stage sink.
// A Graph is not safe for concurrent use.
type Graph struct {
	log     hclog.Logger
	grid    float32
	nodes   map[NodeID]*Node
	nodeIDs idPool
	// lines is kept in creation order which defines input order.
	lines    []Line
	lineIDs  idPool
	vertex   NodeID
	fragment NodeID
	geom     GeometryInputs
}

// New returns a graph holding only the two stage sinks.
func New(cfg Config) *Graph {
	g := &Graph{
		log:     cfg.Logger,
		grid:    cfg.GridSpacing,
		nodes:   make(map[NodeID]*Node),
		nodeIDs: idPool{limit: MaxNodes},
		lineIDs: idPool{limit: MaxLines},
		geom:    DefaultGeometryInputs(),
	}
	if g.log == nil {
		g.log = hclog.NewNullLogger()
	}
	if g.grid <= 0 {
		g.grid = DefaultGridSpacing
	}
	// Sinks take the two highest IDs so user nodes are numbered from zero.
	g.vertex = g.addSink(KindVertexOutput, MaxNodes-2)
	g.fragment = g.addSink(KindFragmentOutput, MaxNodes-1)
	return g
}

func (g *Graph) addSink(k Kind, id NodeID) NodeID {
	g.nodeIDs.claim(int(id))
	g.nodes[id] = &Node{id: id, kind: k, name: k.DisplayName()}
	return id
}

// Logger returns the logger the graph was configured with.
func (g *Graph) Logger() hclog.Logger { return g.log }

// VertexSink returns the ID of the vertex stage sink.
func (g *Graph) VertexSink() NodeID { return g.vertex }

// FragmentSink returns the ID of the fragment stage sink.
func (g *Graph) FragmentSink() NodeID { return g.fragment }

// Len returns the number of live nodes including the sinks.
func (g *Graph) Len() int { return len(g.nodes) }

// AddNode creates a node of kind k and returns its ID. Literal and constant
// nodes start with their authored default value.
func (g *Graph) AddNode(k Kind) (NodeID, error) {
	if !k.Valid() {
		return NoNode, fmt.Errorf("add node: invalid kind %d", int(k))
	}
	if k.IsSink() {
		return NoNode, fmt.Errorf("add node: %s is created with the graph", k.DisplayName())
	}
	raw, ok := g.nodeIDs.get()
	if !ok {
		return NoNode, fmt.Errorf("add node %s: %w (max %d nodes)", k, ErrCapacity, MaxNodes)
	}
	n := &Node{id: NodeID(raw), kind: k, name: k.DisplayName()}
	switch k {
	case KindPi:
		n.setOutput([]float32{math32.Pi})
	case KindE:
		n.setOutput([]float32{math32.E})
	case KindMatrix:
		n.setOutput(identity4[:])
	default:
		if k.IsLeaf() {
			var zero [MaxValues]float32
			n.setOutput(zero[:k.FixedWidth()])
		}
	}
	n.refreshText()
	g.nodes[n.id] = n
	g.log.Debug("node added", "id", n.id, "kind", k)
	return n.id, nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all live nodes ordered by ID.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int { return int(a.id - b.id) })
	return nodes
}

// Lines returns all links in creation order.
func (g *Graph) Lines() []Line { return slices.Clone(g.lines) }

// Inputs returns the IDs of the nodes feeding id, in link creation order.
func (g *Graph) Inputs(id NodeID) []NodeID {
	var inputs []NodeID
	for _, l := range g.lines {
		if l.To == id {
			inputs = append(inputs, l.From)
		}
	}
	return inputs
}

// Outputs returns the IDs of the nodes fed by id, in link creation order.
func (g *Graph) Outputs(id NodeID) []NodeID {
	var outputs []NodeID
	for _, l := range g.lines {
		if l.From == id {
			outputs = append(outputs, l.To)
		}
	}
	return outputs
}

// DeleteNode removes a node and every link touching it.
func (g *Graph) DeleteNode(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("delete node %d: %w", id, ErrNodeNotFound)
	}
	if n.kind.IsSink() {
		return fmt.Errorf("delete node %d: %w", id, ErrSinkDelete)
	}
	g.lines = slices.DeleteFunc(g.lines, func(l Line) bool {
		touches := l.From == id || l.To == id
		if touches {
			g.lineIDs.put(int(l.ID))
		}
		return touches
	})
	delete(g.nodes, id)
	g.nodeIDs.put(int(id))
	g.log.Debug("node deleted", "id", id, "kind", n.kind)
	return nil
}

// Unlink removes a single link.
func (g *Graph) Unlink(id LineID) error {
	i := slices.IndexFunc(g.lines, func(l Line) bool { return l.ID == id })
	if i < 0 {
		return fmt.Errorf("unlink %d: %w", id, ErrLineNotFound)
	}
	l := g.lines[i]
	g.lines = slices.Delete(g.lines, i, i+1)
	g.lineIDs.put(int(id))
	g.log.Debug("line deleted", "id", id, "from", l.From, "to", l.To)
	return nil
}

// UnlinkInputs removes every link feeding node id and returns how many were removed.
func (g *Graph) UnlinkInputs(id NodeID) int {
	removed := 0
	g.lines = slices.DeleteFunc(g.lines, func(l Line) bool {
		if l.To != id {
			return false
		}
		g.lineIDs.put(int(l.ID))
		removed++
		return true
	})
	return removed
}

// ClearUnused deletes every non-sink node with no links attached and returns
// the number of nodes deleted.
func (g *Graph) ClearUnused() int {
	used := make(map[NodeID]bool, len(g.nodes))
	for _, l := range g.lines {
		used[l.From] = true
		used[l.To] = true
	}
	deleted := 0
	for _, n := range g.Nodes() {
		if n.kind.IsSink() || used[n.id] {
			continue
		}
		if err := g.DeleteNode(n.id); err == nil {
			deleted++
		}
	}
	return deleted
}

// Clear deletes every node except the two sinks.
func (g *Graph) Clear() {
	for _, n := range g.Nodes() {
		if !n.kind.IsSink() {
			g.DeleteNode(n.id)
		}
	}
}

// SetPosition moves a node on the canvas.
func (g *Graph) SetPosition(id NodeID, pos ms2.Vec) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set position %d: %w", id, ErrNodeNotFound)
	}
	n.pos = pos
	return nil
}

// AlignNode snaps a node's canvas position to the nearest grid point.
func (g *Graph) AlignNode(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("align node %d: %w", id, ErrNodeNotFound)
	}
	n.pos = ms2.Vec{X: snap(n.pos.X, g.grid), Y: snap(n.pos.Y, g.grid)}
	return nil
}

func snap(v, grid float32) float32 {
	return math32.Floor(v/grid+0.5) * grid
}

// SetValues sets the values of a literal node. The number of values must match
// the literal's width.
func (g *Graph) SetValues(id NodeID, values ...float32) error {
	n, err := g.literal(id)
	if err != nil {
		return err
	}
	if len(values) != n.width {
		return fmt.Errorf("set values of %s: got %d values, want %d: %w", n, len(values), n.width, ErrShapeMismatch)
	}
	n.setOutput(values)
	n.refreshText()
	return nil
}

// SetLiteralText commits user authored text for value index i of a literal node.
// Text that does not parse as a number sets the value to zero. The authored text
// is kept as is for display.
func (g *Graph) SetLiteralText(id NodeID, i int, text string) error {
	n, err := g.literal(id)
	if err != nil {
		return err
	}
	if i < 0 || i >= n.width {
		return fmt.Errorf("set literal text of %s: index %d out of range [0,%d)", n, i, n.width)
	}
	v, err := strconv.ParseFloat(text, 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		g.log.Warn("literal text is not a number", "node", n.id, "index", i, "text", text)
		v = 0
	}
	n.out[i] = float32(v)
	n.text[i] = text
	return nil
}

// LiteralText returns the text last committed for value index i of a literal node.
func (g *Graph) LiteralText(id NodeID, i int) (string, error) {
	n, err := g.literal(id)
	if err != nil {
		return "", err
	}
	if i < 0 || i >= n.width {
		return "", fmt.Errorf("literal text of %s: index %d out of range [0,%d)", n, i, n.width)
	}
	return n.text[i], nil
}

func (g *Graph) literal(id NodeID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	if n.kind.Category() != CategoryLiteral {
		return nil, fmt.Errorf("%s is not a literal", n)
	}
	return n, nil
}

// GeometryInputs returns the current externally supplied geometry values.
func (g *Graph) GeometryInputs() GeometryInputs { return g.geom }

// SetGeometryInputs replaces the externally supplied geometry values.
func (g *Graph) SetGeometryInputs(in GeometryInputs) { g.geom = in }

// idPool hands out the lowest free integer in [0, limit).
type idPool struct {
	limit int
	next  int   // Lowest ID never handed out.
	free  []int // Released IDs below next, sorted ascending.
}

func (p *idPool) get() (int, bool) {
	if len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		return id, true
	}
	if p.next >= p.limit {
		return -1, false
	}
	p.next++
	return p.next - 1, true
}

// claim marks id as in use.
func (p *idPool) claim(id int) {
	if id >= p.next {
		for i := p.next; i < id; i++ {
			p.free = append(p.free, i)
		}
		p.next = id + 1
		return
	}
	if i, found := slices.BinarySearch(p.free, id); found {
		p.free = slices.Delete(p.free, i, i+1)
	}
}

func (p *idPool) put(id int) {
	i, found := slices.BinarySearch(p.free, id)
	if !found {
		p.free = slices.Insert(p.free, i, id)
	}
}
