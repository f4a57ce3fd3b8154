package main

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/soypat/fnode"
	"github.com/soypat/fnode/snapshot"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rimGraph = `
node "tint" {
  kind   = "Vector3"
  values = [1, 0.5, 0.25]
}
node "rim" {
  kind = "Fresnel"
}
node "color" {
  kind   = "Multiply"
  inputs = ["tint", "rim"]
}
node "unused" {
  kind     = "Value"
  values   = [pi]
  position = [13, 37]
}
output "fragment" {
  from = "color"
}
`

func testMeta(t *testing.T) (Meta, *cli.MockUi) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "rim.hcl", []byte(rimGraph), 0o644))
	ui := cli.NewMockUi()
	return Meta{Ui: ui, Fs: fs, Logger: hclog.NewNullLogger()}, ui
}

func TestCompileCommand(t *testing.T) {
	meta, ui := testMeta(t)
	c := &CompileCommand{Meta: meta}
	code := c.Run([]string{"-out", "build", "rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	for _, name := range []string{"build/shader.vs", "build/shader.fs", "build/graph.fnode"} {
		exists, err := afero.Exists(meta.Fs, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
		assert.Contains(t, ui.OutputWriter.String(), "wrote "+name)
	}
	fragment, err := afero.ReadFile(meta.Fs, "build/shader.fs")
	require.NoError(t, err)
	assert.Contains(t, string(fragment), "vec3 node_02 = node_00*node_01;")
	// Nothing drives the vertex stage.
	assert.Contains(t, ui.ErrorWriter.String(), fnode.ErrGraphIncomplete.Error())
}

func TestCompileCommandConfig(t *testing.T) {
	meta, ui := testMeta(t)
	const config = `
output_dir    = "out"
fragment_file = "rim.fs"
diagram_file  = "rim.png"
`
	require.NoError(t, afero.WriteFile(meta.Fs, "fnode.hcl", []byte(config), 0o644))
	c := &CompileCommand{Meta: meta}
	code := c.Run([]string{"rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	for _, name := range []string{"out/shader.vs", "out/rim.fs", "out/rim.png"} {
		exists, err := afero.Exists(meta.Fs, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := loadConfig(fs, "fnode.hcl", false)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	_, err = loadConfig(fs, "fnode.hcl", true)
	assert.Error(t, err)

	const src = `
snapshot     = "scene.fnode"
grid_spacing = 10
log_level    = "debug"
geometry {
  fresnel = 1 / 4
}
`
	require.NoError(t, afero.WriteFile(fs, "fnode.hcl", []byte(src), 0o644))
	cfg, err = loadConfig(fs, "fnode.hcl", false)
	require.NoError(t, err)
	assert.Equal(t, "scene.fnode", cfg.Snapshot)
	assert.Equal(t, 10.0, cfg.GridSpacing)
	assert.Equal(t, "shader.vs", cfg.VertexFile, "unset attributes keep defaults")
	require.NotNil(t, cfg.Geometry)
	require.NotNil(t, cfg.Geometry.Fresnel)
	assert.Equal(t, 0.25, *cfg.Geometry.Fresnel)

	for _, bad := range []string{`log_level = "loud"`, `grid_spacing = -1`, `snapshot = `, `unknown = 1`} {
		require.NoError(t, afero.WriteFile(fs, "bad.hcl", []byte(bad), 0o644))
		_, err = loadConfig(fs, "bad.hcl", true)
		assert.Error(t, err, bad)
	}
}

func TestEvalCommand(t *testing.T) {
	meta, ui := testMeta(t)
	const config = `
geometry {
  fresnel = 0.5
}
`
	require.NoError(t, afero.WriteFile(meta.Fs, "fnode.hcl", []byte(config), 0o644))
	c := &EvalCommand{Meta: meta}
	code := c.Run([]string{"rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	out := ui.OutputWriter.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 1+4+2, out)
	assert.Regexp(t, `(?m)^2\s+Multiply\s+0,1\s+0\.500 0\.250 0\.125$`, out)
}

func TestEvalMissingSnapshot(t *testing.T) {
	meta, ui := testMeta(t)
	c := &EvalCommand{Meta: meta}
	assert.Equal(t, 1, c.Run(nil))
	assert.Contains(t, ui.ErrorWriter.String(), fnode.ErrPersistenceFault.Error())

	c = &EvalCommand{Meta: meta}
	assert.Equal(t, 1, c.Run([]string{"a.fnode", "b.fnode"}), "more than one graph")
}

func TestFmtCommand(t *testing.T) {
	meta, ui := testMeta(t)
	c := &FmtCommand{Meta: meta}
	code := c.Run([]string{"-prune", "-align", "-o", "rim.fnode", "rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Contains(t, ui.OutputWriter.String(), "removed 1 unused nodes")

	g, err := snapshot.Load(meta.Fs, "rim.fnode", fnode.Config{})
	require.NoError(t, err)
	// Three user nodes and two sinks.
	assert.Equal(t, 5, g.Len())
	assert.Len(t, g.Lines(), 3)
}

func TestFmtAlign(t *testing.T) {
	meta, ui := testMeta(t)
	c := &FmtCommand{Meta: meta}
	code := c.Run([]string{"-align", "-o", "rim.fnode", "rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	g, err := snapshot.Load(meta.Fs, "rim.fnode", fnode.Config{})
	require.NoError(t, err)
	n, ok := g.Node(3)
	require.True(t, ok)
	assert.Equal(t, fnode.KindValue, n.Kind())
	// Declared at (13, 37), the default grid is 25.
	assert.Equal(t, float32(25), n.Position().X)
	assert.Equal(t, float32(25), n.Position().Y)
}

func TestRenderCommand(t *testing.T) {
	meta, ui := testMeta(t)
	c := &RenderCommand{Meta: meta}
	code := c.Run([]string{"-o", "rim.png", "rim.hcl"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	png, err := afero.ReadFile(meta.Fs, "rim.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	c = &RenderCommand{Meta: meta}
	assert.Equal(t, 1, c.Run([]string{"-scale", "-2", "rim.hcl"}))
}

func TestCommandsHelp(t *testing.T) {
	meta, _ := testMeta(t)
	for name, factory := range commands(meta) {
		cmd, err := factory()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(cmd.Help(), "Usage: fnode "+name), name)
		assert.NotEmpty(t, cmd.Synopsis())
	}
}
