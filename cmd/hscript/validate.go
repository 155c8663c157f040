package main

import (
	"fmt"
	"strings"
)

// ValidateCommand loads and validates a script without changing anything.
type ValidateCommand struct {
	Meta
}

func (c *ValidateCommand) Run(args []string) int {
	name, ok := c.parseArgs(c.defaultFlagSet("validate"), args)
	if !ok {
		return 1
	}

	s, rep, err := c.loadScript(name)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := s.Validate(c.CommandContext()); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("%s is valid (%d warning(s))", name, rep.Warnings()))
	return 0
}

func (c *ValidateCommand) Help() string {
	helpText := `
Usage: hscript validate [options] [SCRIPT]

  Parses and validates a HorizonScript. SCRIPT defaults to
  /etc/horizon/installfile; "-" reads standard input.

  Diagnostics are written to standard error as tab-separated events.

Options:

  -keep-going       Report every error instead of stopping at the first.

  -strict           Treat unknown keys as errors.

  -install          Check that devices, interfaces and time zones named by
                    the script exist on this machine.

  -require-network  Fail unless the script enables networking.

  -no-color         Disable colorized diagnostics.

  -debug            Write debug logging to standard error.
`
	return strings.TrimSpace(helpText)
}

func (c *ValidateCommand) Synopsis() string {
	return "Check a script for errors"
}
