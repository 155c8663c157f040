package main

import (
	"strings"

	"github.com/horizon-installer/hscript/script"
)

// ExecuteCommand carries out a script, or prints what it would do.
type ExecuteCommand struct {
	Meta
}

func (c *ExecuteCommand) Run(args []string) int {
	f := c.defaultFlagSet("execute")
	var simulate, image bool
	var target string
	f.BoolVar(&simulate, "simulate", false, "print shell commands instead of running them")
	f.BoolVar(&image, "image", false, "assemble an image; skip mounting")
	f.StringVar(&target, "target", script.DefaultTarget, "directory the new system is assembled in")
	name, ok := c.parseArgs(f, args)
	if !ok {
		return 1
	}
	if !simulate && !c.flagInstall {
		c.Ui.Error("refusing to change this machine without -install; use -simulate to preview")
		return 1
	}

	var flags script.Flag
	if simulate {
		flags |= script.Simulate
	}
	if image {
		flags |= script.ImageOnly
	}
	s, _, err := c.loadScript(name, script.WithFlags(flags), script.WithTarget(target))
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := s.Execute(c.CommandContext()); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	return 0
}

func (c *ExecuteCommand) Help() string {
	helpText := `
Usage: hscript execute [options] [SCRIPT]

  Validates a HorizonScript and installs the system it describes into the
  target directory. Disks named by the script are repartitioned and
  formatted.

  With -simulate nothing is changed; the equivalent shell script is
  written to standard output instead.

Options:

  -simulate         Print shell commands instead of running them.

  -install          Required to make real changes to this machine.

  -target=DIR       Directory the new system is assembled in.
                    Defaults to /target.

  -image            Assemble an image; skip mounting filesystems.

  -keep-going       Report every parse error instead of stopping at the first.

  -strict           Treat unknown keys as errors.

  -require-network  Fail unless the script enables networking.

  -no-color         Disable colorized diagnostics.

  -debug            Write debug logging to standard error.
`
	return strings.TrimSpace(helpText)
}

func (c *ExecuteCommand) Synopsis() string {
	return "Install the system a script describes"
}
