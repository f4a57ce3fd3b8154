package fnode

import (
	"fmt"
	"slices"
)

// Link creates a link feeding the output of node from into the next free input
// of node to. If a link between the same pair of nodes already exists it is
// replaced and the input moves to the last slot. Refused links return a
// [*LinkError] and leave the graph unchanged.
func (g *Graph) Link(from, to NodeID) (LineID, error) {
	err := g.CanLink(from, to)
	if err != nil {
		g.log.Warn("link refused", "from", from, "to", to, "error", err)
		return -1, err
	}
	dup := slices.IndexFunc(g.lines, func(l Line) bool { return l.From == from && l.To == to })
	if dup >= 0 {
		g.lineIDs.put(int(g.lines[dup].ID))
		g.lines = slices.Delete(g.lines, dup, dup+1)
	}
	raw, ok := g.lineIDs.get()
	if !ok {
		return -1, fmt.Errorf("link %d->%d: %w (max %d lines)", from, to, ErrCapacity, MaxLines)
	}
	l := Line{ID: LineID(raw), From: from, To: to}
	g.lines = append(g.lines, l)
	g.log.Debug("line added", "id", l.ID, "from", from, "to", to)
	return l.ID, nil
}

// CanLink reports whether [Graph.Link] would accept a link from node from into
// node to given the current graph. It does not modify the graph.
func (g *Graph) CanLink(from, to NodeID) error {
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("link source %d: %w", from, ErrNodeNotFound)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("link destination %d: %w", to, ErrNodeNotFound)
	}
	refuse := func(err error, format string, args ...any) error {
		return &LinkError{From: from, To: to, Kind: dst.kind, Reason: fmt.Sprintf(format, args...), Err: err}
	}
	switch {
	case from == to:
		return refuse(ErrIncompatibleShape, "node can not link to itself")
	case src.kind.IsSink():
		return refuse(ErrIncompatibleShape, "%s has no output", src.name)
	case g.reaches(to, from):
		return refuse(ErrCycle, "%s already depends on %s", src.name, dst.name)
	}
	// Widths of the existing inputs, ignoring a link this one would replace.
	var widths []int
	for _, l := range g.lines {
		if l.To == to && l.From != from {
			widths = append(widths, g.nodes[l.From].width)
		}
	}
	if len(widths) >= dst.kind.InputLimit() {
		return refuse(ErrIncompatibleShape, "%s accepts at most %d inputs", dst.name, dst.kind.InputLimit())
	}
	if reason := linkRule(dst.kind, widths, src.width); reason != "" {
		return refuse(ErrIncompatibleShape, "%s (source width %d)", reason, src.width)
	}
	return nil
}

// reaches reports whether dst can be reached from src following links downstream.
func (g *Graph) reaches(src, dst NodeID) bool {
	if src == dst {
		return true
	}
	visited := make(map[NodeID]bool)
	stack := []NodeID{src}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range g.lines {
			if l.From != id || visited[l.To] {
				continue
			}
			if l.To == dst {
				return true
			}
			visited[l.To] = true
			stack = append(stack, l.To)
		}
	}
	return false
}

// firstInputChecked reports whether the first input of kind k is shape
// checked. All other kinds accept any first input.
func firstInputChecked(k Kind) bool {
	switch k {
	case KindNormalize, KindDotProduct, KindLength, KindMultiplyMatrix, KindTranspose,
		KindProjection, KindDistance, KindRejection, KindHalfDirection, KindStep,
		KindDesaturate, KindVertexOutput, KindFragmentOutput:
		return true
	}
	return false
}

// linkRule returns a non-empty reason when a source of width w may not feed
// a node of kind k whose current inputs have the given widths.
func linkRule(k Kind, inputs []int, w int) string {
	count := len(inputs)
	if count == 0 && !firstInputChecked(k) {
		return ""
	}
	switch k {
	case KindAppend:
		acc := 0
		for _, iw := range inputs {
			acc += iw
		}
		if w != 1 {
			return "append only accepts scalars after the first input"
		} else if acc+w > 4 {
			return "append result would be wider than 4"
		}
	case KindPower, KindPosterize:
		if count == 1 && w != 1 {
			return "second input must be a scalar"
		}
	case KindStep:
		if w != 1 {
			return "step inputs must be scalars"
		}
	case KindNormalize, KindLength:
		if w < 2 || w > 4 {
			return "input must be a vector"
		}
	case KindCrossProduct:
		if w != 3 {
			return "cross product requires 3 component vectors"
		}
	case KindDesaturate:
		if count == 0 && (w < 1 || w > 4) {
			return "color must have 1 to 4 components"
		} else if count == 1 && w != 1 {
			return "desaturation amount must be a scalar"
		}
	case KindDotProduct, KindProjection, KindRejection, KindHalfDirection:
		if w < 2 || w > 4 {
			return "input must be a vector"
		} else if count > 0 && w != inputs[0] {
			return "inputs must have equal width"
		}
	case KindDistance:
		if w < 1 || w > 4 {
			return "input must be a scalar or vector"
		} else if count > 0 && w != inputs[0] {
			return "inputs must have equal width"
		}
	case KindMultiplyMatrix, KindTranspose:
		if w != 16 {
			return "input must be a 4x4 matrix"
		}
	case KindVertexOutput, KindFragmentOutput:
		if w > k.FixedWidth() {
			return fmt.Sprintf("stage output accepts at most %d components", k.FixedWidth())
		}
	case KindAdd, KindSubtract, KindMultiply, KindDivide:
		acc := inputs[0]
		for _, iw := range inputs[1:] {
			if k == KindMultiply && promotes(acc, iw) {
				acc = 4
			}
		}
		if w != acc && w != 1 && !(k == KindMultiply && promotes(acc, w)) {
			return "operands must have equal width or be scalars"
		}
	default:
		if w != inputs[0] {
			return "inputs must have equal width"
		}
	}
	return ""
}

// promotes reports whether multiplying operands of widths a and b is a
// homogeneous transform of a 3 component vector by a 4x4 matrix.
func promotes(a, b int) bool {
	return (a == 3 && b == 16) || (a == 16 && b == 3)
}
