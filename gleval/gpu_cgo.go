//go:build !tinygo && cgo

package gleval

import (
	"fmt"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

// InitHiddenContext creates an invisible 1x1 window and makes its OpenGL context
// current on the calling thread. It returns a termination function that should
// be called once the user is done running loads on the GPU.
// Callers should lock the goroutine to its thread with runtime.LockOSThread.
func InitHiddenContext() (terminate func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(1, 1, "fnode", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return func() {
		window.Destroy()
		glfw.Terminate()
	}, nil
}

// Driver returns the identification strings of the current OpenGL context.
func Driver() DriverInfo {
	return DriverInfo{
		Vendor:      gl.GoStr(gl.GetString(gl.VENDOR)),
		Renderer:    gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:     gl.GoStr(gl.GetString(gl.VERSION)),
		GLSLVersion: gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION)),
	}
}

// Check compiles and links the vertex and fragment stage sources with the
// current OpenGL context. A context must have been made current beforehand,
// i.e: with [InitHiddenContext]. Rejected sources return a [*CompileError].
func Check(vertex, fragment []byte) error {
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   nulTerminated(vertex),
		Fragment: nulTerminated(fragment),
	})
	if err != nil {
		return &CompileError{Driver: Driver(), Log: err.Error()}
	}
	prog.Delete()
	return nil
}
