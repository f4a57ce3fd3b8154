// Package gleval compiles generated stage sources with the local OpenGL driver.
// Generated GLSL is not guaranteed to be accepted by every driver, compiling it
// before shipping it catches type errors the graph link rules can not see.
package gleval

import (
	"errors"
	"fmt"
	"strings"
)

var errNoCGO = errors.New("GPU compile check requires CGo and is not supported on TinyGo")

// DriverInfo identifies the OpenGL implementation sources were checked against.
type DriverInfo struct {
	Vendor      string
	Renderer    string
	Version     string
	GLSLVersion string
}

func (d DriverInfo) String() string {
	return fmt.Sprintf("%s %s (OpenGL %s, GLSL %s)", d.Vendor, d.Renderer, d.Version, d.GLSLVersion)
}

// CompileError is returned by [Check] when the driver rejects a program.
type CompileError struct {
	Driver DriverInfo
	// Log is the driver's compile or link log.
	Log string
}

func (e *CompileError) Error() string {
	return "shader rejected by " + e.Driver.Renderer + ": " + strings.TrimSpace(e.Log)
}

// nulTerminated returns src as a string with a single trailing NUL as
// required by the OpenGL bindings.
func nulTerminated(src []byte) string {
	s := strings.TrimRight(string(src), "\x00")
	return s + "\x00"
}
