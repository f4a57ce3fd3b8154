// Package glsllib holds the fixed GLSL text surrounding generated stage bodies.
package glsllib

import (
	_ "embed"
)

var (
	//go:embed vertex.glsl
	vertexHeader []byte
	//go:embed fragment.glsl
	fragmentHeader []byte
	//go:embed vertex_main.glsl
	vertexPassthrough []byte
)

// AppendVertexHeader appends the version directive and the attribute and uniform
// declarations of the vertex stage.
//
//	in vec3 vertexPosition, vertexNormal; uniform mat4 mvpMatrix; uniform vec3 viewDirection
func AppendVertexHeader(b []byte) []byte { return append(b, vertexHeader...) }

// AppendFragmentHeader appends the version directive and the attribute and uniform
// declarations of the fragment stage.
//
//	in vec3 fragPosition, fragNormal; uniform vec3 viewDirection; out vec4 finalColor
func AppendFragmentHeader(b []byte) []byte { return append(b, fragmentHeader...) }

// AppendVertexPassthrough appends the statements forwarding vertex attributes
// to the fragment stage. They open the body of the vertex stage main function.
func AppendVertexPassthrough(b []byte) []byte { return append(b, vertexPassthrough...) }
