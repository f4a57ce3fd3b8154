// Command fnode compiles shader node graphs into GLSL sources.
//
//	fnode compile -out build rim.hcl
//	fnode eval graph.fnode
//	fnode render -o graph.png
package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	color := hclog.ColorOff
	if tty {
		color = hclog.ForceColor
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fnode",
		Level:  hclog.LevelFromString(os.Getenv("FNODE_LOG")),
		Output: os.Stderr,
		Color:  color,
	})
	var ui cli.Ui = &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	if tty {
		ui = &cli.ColoredUi{
			ErrorColor: cli.UiColorRed,
			WarnColor:  cli.UiColorYellow,
			Ui:         ui,
		}
	}
	meta := Meta{
		Ui:     ui,
		Fs:     afero.NewOsFs(),
		Logger: logger,
	}
	c := cli.NewCLI("fnode", version)
	c.Args = args
	c.HelpWriter = os.Stderr
	c.Commands = commands(meta)
	exitStatus, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
	}
	return exitStatus
}

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"compile": func() (cli.Command, error) { return &CompileCommand{Meta: meta}, nil },
		"eval":    func() (cli.Command, error) { return &EvalCommand{Meta: meta}, nil },
		"render":  func() (cli.Command, error) { return &RenderCommand{Meta: meta}, nil },
		"check":   func() (cli.Command, error) { return &CheckCommand{Meta: meta}, nil },
		"fmt":     func() (cli.Command, error) { return &FmtCommand{Meta: meta}, nil },
	}
}
