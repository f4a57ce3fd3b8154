package fnode

import (
	"fmt"
	"strings"
)

// Kind identifies the operation a node performs. Kind values are the ordinals
// written to graph snapshots and must not be reordered.
type Kind int8

const (
	KindPi Kind = iota - 2
	KindE
	KindVertexPosition
	KindVertexNormal
	KindFresnel
	KindViewDirection
	KindMVP
	KindMatrix
	KindValue
	KindVector2
	KindVector3
	KindVector4
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindAppend
	KindOneMinus
	KindAbs
	KindCos
	KindSin
	KindTan
	KindDeg2Rad
	KindRad2Deg
	KindNormalize
	KindNegate
	KindReciprocal
	KindSqrt
	KindTrunc
	KindRound
	KindCeil
	KindClamp01
	KindExp2
	KindPower
	KindStep
	KindPosterize
	KindMax
	KindMin
	KindLerp
	KindSmoothStep
	KindCrossProduct
	KindDesaturate
	KindDistance
	KindDotProduct
	KindLength
	KindMultiplyMatrix
	KindTranspose
	KindProjection
	KindRejection
	KindHalfDirection
	KindVertexOutput
	KindFragmentOutput
)

// Category groups kinds that share evaluation and code generation behavior.
type Category uint8

const (
	CategoryConstant Category = iota
	CategoryLiteral
	CategoryGeometryInput
	CategoryArithmetic
	CategoryCompose
	CategoryOperator
	CategorySink
)

func (c Category) String() string {
	switch c {
	case CategoryConstant:
		return "constant"
	case CategoryLiteral:
		return "literal"
	case CategoryGeometryInput:
		return "geometry input"
	case CategoryArithmetic:
		return "arithmetic"
	case CategoryCompose:
		return "compose"
	case CategoryOperator:
		return "operator"
	case CategorySink:
		return "sink"
	}
	return "unknown category"
}

type kindInfo struct {
	ident    string // Identifier used in HCL graph descriptions.
	name     string // Human readable display name.
	category Category
	limit    int // Maximum number of inbound links.
	required int // Inputs needed before the node produces output.
	width    int // Fixed output width for input-less kinds, sink capacity for sinks.
}

var kinds = [...]kindInfo{
	KindPi - KindPi:             {"Pi", "Pi", CategoryConstant, 0, 0, 1},
	KindE - KindPi:              {"E", "e", CategoryConstant, 0, 0, 1},
	KindVertexPosition - KindPi: {"VertexPosition", "Vertex Position", CategoryGeometryInput, 0, 0, 3},
	KindVertexNormal - KindPi:   {"VertexNormal", "Normal Direction", CategoryGeometryInput, 0, 0, 3},
	KindFresnel - KindPi:        {"Fresnel", "Fresnel", CategoryGeometryInput, 0, 0, 1},
	KindViewDirection - KindPi:  {"ViewDirection", "View Direction", CategoryGeometryInput, 0, 0, 3},
	KindMVP - KindPi:            {"MVP", "MVP Matrix", CategoryGeometryInput, 0, 0, 16},
	KindMatrix - KindPi:         {"Matrix", "Matrix 4x4", CategoryLiteral, 0, 0, 16},
	KindValue - KindPi:          {"Value", "Value", CategoryLiteral, 0, 0, 1},
	KindVector2 - KindPi:        {"Vector2", "Vector 2", CategoryLiteral, 0, 0, 2},
	KindVector3 - KindPi:        {"Vector3", "Vector 3", CategoryLiteral, 0, 0, 3},
	KindVector4 - KindPi:        {"Vector4", "Vector 4", CategoryLiteral, 0, 0, 4},
	KindAdd - KindPi:            {"Add", "Add", CategoryArithmetic, 4, 1, 0},
	KindSubtract - KindPi:       {"Subtract", "Subtract", CategoryArithmetic, 4, 1, 0},
	KindMultiply - KindPi:       {"Multiply", "Multiply", CategoryArithmetic, 4, 1, 0},
	KindDivide - KindPi:         {"Divide", "Divide", CategoryArithmetic, 4, 1, 0},
	KindAppend - KindPi:         {"Append", "Append", CategoryCompose, 4, 1, 0},
	KindOneMinus - KindPi:       {"OneMinus", "One Minus", CategoryOperator, 1, 1, 0},
	KindAbs - KindPi:            {"Abs", "Abs", CategoryOperator, 1, 1, 0},
	KindCos - KindPi:            {"Cos", "Cos", CategoryOperator, 1, 1, 0},
	KindSin - KindPi:            {"Sin", "Sin", CategoryOperator, 1, 1, 0},
	KindTan - KindPi:            {"Tan", "Tan", CategoryOperator, 1, 1, 0},
	KindDeg2Rad - KindPi:        {"Deg2Rad", "Deg to Rad", CategoryOperator, 1, 1, 0},
	KindRad2Deg - KindPi:        {"Rad2Deg", "Rad to Deg", CategoryOperator, 1, 1, 0},
	KindNormalize - KindPi:      {"Normalize", "Normalize", CategoryOperator, 1, 1, 0},
	KindNegate - KindPi:         {"Negate", "Negate", CategoryOperator, 1, 1, 0},
	KindReciprocal - KindPi:     {"Reciprocal", "Reciprocal", CategoryOperator, 1, 1, 0},
	KindSqrt - KindPi:           {"Sqrt", "Square Root", CategoryOperator, 1, 1, 0},
	KindTrunc - KindPi:          {"Trunc", "Truncate", CategoryOperator, 1, 1, 0},
	KindRound - KindPi:          {"Round", "Round", CategoryOperator, 1, 1, 0},
	KindCeil - KindPi:           {"Ceil", "Ceil", CategoryOperator, 1, 1, 0},
	KindClamp01 - KindPi:        {"Clamp01", "Clamp 0-1", CategoryOperator, 1, 1, 0},
	KindExp2 - KindPi:           {"Exp2", "Exp 2", CategoryOperator, 1, 1, 0},
	KindPower - KindPi:          {"Power", "Power", CategoryOperator, 2, 2, 0},
	KindStep - KindPi:           {"Step", "Step", CategoryOperator, 2, 2, 0},
	KindPosterize - KindPi:      {"Posterize", "Posterize", CategoryOperator, 2, 2, 0},
	KindMax - KindPi:            {"Max", "Max", CategoryOperator, 2, 2, 0},
	KindMin - KindPi:            {"Min", "Min", CategoryOperator, 2, 2, 0},
	KindLerp - KindPi:           {"Lerp", "Lerp", CategoryOperator, 3, 3, 0},
	KindSmoothStep - KindPi:     {"SmoothStep", "Smooth Step", CategoryOperator, 3, 3, 0},
	KindCrossProduct - KindPi:   {"CrossProduct", "Cross Product", CategoryOperator, 2, 2, 0},
	KindDesaturate - KindPi:     {"Desaturate", "Desaturate", CategoryOperator, 2, 2, 0},
	KindDistance - KindPi:       {"Distance", "Distance", CategoryOperator, 2, 2, 0},
	KindDotProduct - KindPi:     {"DotProduct", "Dot Product", CategoryOperator, 2, 2, 0},
	KindLength - KindPi:         {"Length", "Length", CategoryOperator, 1, 1, 0},
	KindMultiplyMatrix - KindPi: {"MultiplyMatrix", "Multiply Matrix", CategoryOperator, 2, 2, 0},
	KindTranspose - KindPi:      {"Transpose", "Transpose", CategoryOperator, 1, 1, 0},
	KindProjection - KindPi:     {"Projection", "Projection Vector", CategoryOperator, 2, 2, 0},
	KindRejection - KindPi:      {"Rejection", "Rejection Vector", CategoryOperator, 2, 2, 0},
	KindHalfDirection - KindPi:  {"HalfDirection", "Half Direction", CategoryOperator, 2, 2, 0},
	KindVertexOutput - KindPi:   {"VertexOutput", "Final Vertex Position", CategorySink, 1, 1, 16},
	KindFragmentOutput - KindPi: {"FragmentOutput", "Final Fragment Color", CategorySink, 1, 1, 4},
}

func (k Kind) info() *kindInfo {
	if !k.Valid() {
		panic("invalid node kind " + k.String())
	}
	return &kinds[k-KindPi]
}

// Valid reports whether k is a known node kind.
func (k Kind) Valid() bool { return k >= KindPi && k <= KindFragmentOutput }

// String returns the kind's identifier as used in HCL graph descriptions.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k-KindPi].ident
}

// DisplayName returns the human readable label nodes of this kind are created with.
func (k Kind) DisplayName() string { return k.info().name }

// Category returns the evaluation category of the kind.
func (k Kind) Category() Category { return k.info().category }

// InputLimit returns the maximum number of inbound links a node of this kind accepts.
func (k Kind) InputLimit() int { return k.info().limit }

// RequiredInputs returns the number of inputs a node of this kind must have
// before it produces any output.
func (k Kind) RequiredInputs() int { return k.info().required }

// FixedWidth returns the output width of kinds that take no inputs and 0 for
// every other kind. For sinks it returns the widest output the sink accepts.
func (k Kind) FixedWidth() int { return k.info().width }

// IsSink reports whether k is one of the two stage terminals.
func (k Kind) IsSink() bool { return k == KindVertexOutput || k == KindFragmentOutput }

// IsLeaf reports whether nodes of kind k hold their own value and never
// take inputs: constants, literals and geometry inputs.
func (k Kind) IsLeaf() bool {
	c := k.Category()
	return c == CategoryConstant || c == CategoryLiteral || c == CategoryGeometryInput
}

// ParseKind returns the kind with identifier s. Matching is case insensitive.
func ParseKind(s string) (Kind, error) {
	for i := range kinds {
		if strings.EqualFold(kinds[i].ident, s) {
			return Kind(i) + KindPi, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Kinds returns every node kind in ordinal order.
func Kinds() []Kind {
	all := make([]Kind, len(kinds))
	for i := range all {
		all[i] = Kind(i) + KindPi
	}
	return all
}
